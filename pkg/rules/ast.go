package rules

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Kind 逻辑表达式节点类型
type Kind int

const (
	KindLiteral Kind = iota // 标量字面量
	KindList                // 字面量列表
	KindVar                 // 证据路径引用
	KindAnd
	KindOr
	KindNot
	KindIf // 三段式：条件 / 真分支 / 假分支
	KindCompare
)

// compareOps 允许的比较操作符
var compareOps = map[string]struct{}{
	"==": {}, "!=": {}, ">": {}, ">=": {}, "<": {}, "<=": {}, "in": {},
}

// Node 规则逻辑表达式树的一个节点
// 表达式在加载时构建一次，之后只读；保持可序列化，
// 让合规同学直接改 YAML 规则而不用碰评估器代码
type Node struct {
	Kind    Kind
	Op      string  // Compare 的操作符
	Path    string  // Var 的证据路径
	Literal any     // Literal 的值
	Items   []*Node // And/Or 操作数、Compare 两操作数、If 三分支、List 元素
}

// UnmarshalYAML 从 YAML 构建表达式树
// 形态与 json-logic 一致：单键 mapping 是操作符，标量是字面量
func (n *Node) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var v any
		if err := value.Decode(&v); err != nil {
			return err
		}
		n.Kind = KindLiteral
		n.Literal = normalizeScalar(v)
		return nil

	case yaml.SequenceNode:
		var items []*Node
		if err := value.Decode(&items); err != nil {
			return err
		}
		n.Kind = KindList
		n.Items = items
		return nil

	case yaml.MappingNode:
		if len(value.Content) != 2 {
			return fmt.Errorf("logic node must have exactly one operator key, got %d", len(value.Content)/2)
		}
		op := value.Content[0].Value
		operand := value.Content[1]
		return n.decodeOp(op, operand)

	default:
		return fmt.Errorf("unsupported logic node kind")
	}
}

func (n *Node) decodeOp(op string, operand *yaml.Node) error {
	switch {
	case op == "var":
		var path string
		if err := operand.Decode(&path); err != nil {
			return fmt.Errorf("var operand must be a string path: %w", err)
		}
		n.Kind = KindVar
		n.Path = path
		return nil

	case op == "and" || op == "or":
		var items []*Node
		if err := operand.Decode(&items); err != nil {
			return fmt.Errorf("%s operand must be a sequence: %w", op, err)
		}
		if len(items) < 2 {
			return fmt.Errorf("%s needs at least 2 operands", op)
		}
		if op == "and" {
			n.Kind = KindAnd
		} else {
			n.Kind = KindOr
		}
		n.Items = items
		return nil

	case op == "not":
		var item Node
		if err := operand.Decode(&item); err != nil {
			return fmt.Errorf("not operand: %w", err)
		}
		n.Kind = KindNot
		n.Items = []*Node{&item}
		return nil

	case op == "if":
		var items []*Node
		if err := operand.Decode(&items); err != nil {
			return fmt.Errorf("if operand must be a sequence: %w", err)
		}
		if len(items) != 3 {
			return fmt.Errorf("if needs exactly 3 operands (condition, then, else), got %d", len(items))
		}
		n.Kind = KindIf
		n.Items = items
		return nil

	default:
		if _, ok := compareOps[op]; !ok {
			return fmt.Errorf("unknown logic operator %q", op)
		}
		var items []*Node
		if err := operand.Decode(&items); err != nil {
			return fmt.Errorf("%s operand must be a sequence: %w", op, err)
		}
		if len(items) != 2 {
			return fmt.Errorf("%s needs exactly 2 operands, got %d", op, len(items))
		}
		n.Kind = KindCompare
		n.Op = op
		n.Items = items
		return nil
	}
}

// MarshalYAML 把表达式树序列化回 YAML，与 UnmarshalYAML 对称
func (n *Node) MarshalYAML() (any, error) {
	switch n.Kind {
	case KindLiteral:
		return n.Literal, nil
	case KindList:
		return n.Items, nil
	case KindVar:
		return map[string]any{"var": n.Path}, nil
	case KindAnd:
		return map[string]any{"and": n.Items}, nil
	case KindOr:
		return map[string]any{"or": n.Items}, nil
	case KindNot:
		return map[string]any{"not": n.Items[0]}, nil
	case KindIf:
		return map[string]any{"if": n.Items}, nil
	case KindCompare:
		return map[string]any{n.Op: n.Items}, nil
	}
	return nil, fmt.Errorf("unknown node kind %d", n.Kind)
}

// Paths 收集表达式中引用的全部证据路径，用于加载时校验
func (n *Node) Paths() []string {
	var paths []string
	n.walk(func(node *Node) {
		if node.Kind == KindVar {
			paths = append(paths, node.Path)
		}
	})
	return paths
}

func (n *Node) walk(fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Items {
		c.walk(fn)
	}
}

// normalizeScalar 统一数值类型为 float64，避免评估时 int/float 混比
func normalizeScalar(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}
