package rules

import (
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/cdsgo/cds/pkg/evidence"
)

// supportedVersion 当前支持的规则文件格式版本，缺省视为当前版本
const supportedVersion = "1.0"

// Store 加载完成后只读的规则集合
// 加载即校验：任何一条规则不合法整个文件都拒绝，不做部分加载
type Store struct {
	rules []ComplianceRule
	byID  map[string]*ComplianceRule
}

// Load 从 YAML 文件加载并校验规则集
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("读取规则文件失败: %v", err)}
	}
	return Parse(data)
}

// Parse 解析规则集并逐条校验
func Parse(data []byte) (*Store, error) {
	var cfg rulesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("规则 YAML 解析失败: %v", err)}
	}
	if cfg.Version != "" && cfg.Version != supportedVersion {
		return nil, &ConfigError{Reason: fmt.Sprintf("不支持的规则文件版本 %q，当前支持 %s", cfg.Version, supportedVersion)}
	}
	if len(cfg.Rules) == 0 {
		return nil, &ConfigError{Reason: "规则文件为空"}
	}

	store := &Store{byID: make(map[string]*ComplianceRule, len(cfg.Rules))}
	for i := range cfg.Rules {
		rule := &cfg.Rules[i]
		if err := validateRule(rule); err != nil {
			return nil, err
		}
		if _, dup := store.byID[rule.RegulationID]; dup {
			return nil, &ConfigError{RuleID: rule.RegulationID, Reason: "regulation_id 重复"}
		}
		store.byID[rule.RegulationID] = rule
		store.rules = append(store.rules, *rule)
	}

	sort.Slice(store.rules, func(i, j int) bool {
		return store.rules[i].RegulationID < store.rules[j].RegulationID
	})
	return store, nil
}

// Rules 返回按 regulation_id 排序的规则副本
func (s *Store) Rules() []ComplianceRule {
	out := make([]ComplianceRule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Get 按 regulation_id 查找规则
func (s *Store) Get(id string) (*ComplianceRule, bool) {
	r, ok := s.byID[id]
	return r, ok
}

// Len 规则数量
func (s *Store) Len() int {
	return len(s.rules)
}

func validateRule(rule *ComplianceRule) error {
	if rule.RegulationID == "" {
		return &ConfigError{Reason: "规则缺少 regulation_id"}
	}
	if rule.Name == "" {
		return &ConfigError{RuleID: rule.RegulationID, Reason: "规则缺少 name"}
	}
	if rule.Logic == nil {
		return &ConfigError{RuleID: rule.RegulationID, Reason: "规则缺少 logic"}
	}
	if !rule.Priority.IsValid() {
		return &ConfigError{RuleID: rule.RegulationID, Reason: fmt.Sprintf("priority %q 不合法", rule.Priority)}
	}
	if sum := rule.ConfidenceFactors.Sum(); math.Abs(sum-1.0) > 1e-3 {
		return &ConfigError{RuleID: rule.RegulationID, Reason: fmt.Sprintf("confidence_factors 之和为 %.4f，应为 1.0", sum)}
	}
	for _, p := range rule.Logic.Paths() {
		if !evidence.IsKnownPath(p) {
			return &ConfigError{RuleID: rule.RegulationID, Reason: fmt.Sprintf("引用了未注册的证据路径 %q", p)}
		}
	}
	for _, v := range conclusionLiterals(rule.Logic) {
		if !v.IsValid() {
			return &ConfigError{RuleID: rule.RegulationID, Reason: fmt.Sprintf("结论 %q 不是合法判定", v)}
		}
	}
	return nil
}

// conclusionLiterals 收集逻辑树里处于结论位置的字符串字面量：
// 根节点本身，以及 if 分支（递归）
func conclusionLiterals(n *Node) []Verdict {
	var out []Verdict
	var walk func(n *Node)
	walk = func(n *Node) {
		if n == nil {
			return
		}
		switch n.Kind {
		case KindLiteral:
			if s, ok := n.Literal.(string); ok {
				out = append(out, Verdict(s))
			}
		case KindIf:
			if len(n.Items) == 3 {
				walk(n.Items[1])
				walk(n.Items[2])
			}
		}
	}
	walk(n)
	return out
}
