package rules

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/cdsgo/cds/pkg/evidence"
)

// triValue 三值逻辑的求值结果
// missing 表示证据缺失：缺失不是 false —— 缺少证据不等于没有合规义务
type triValue struct {
	missing bool
	v       any // float64 | bool | string | []string | []any
}

var missingValue = triValue{missing: true}

// Evaluate 用一份证据评估一条规则
// 永不 panic、永不返回 error：任何求值失败都折叠为
// REQUIRES_REVIEW / 置信度 0，不影响同一 feature 的其他规则
func Evaluate(rule *ComplianceRule, ev *evidence.Evidence) (result RuleResult) {
	result = RuleResult{
		RegulationID: rule.RegulationID,
		Priority:     rule.Priority,
		EvidenceRefs: []string{},
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("⚠️ 规则 %s 求值异常: %v", rule.Name, r)
			result.Verdict = VerdictRequiresReview
			result.Confidence = 0.0
			result.Errored = true
			result.Reasoning = fmt.Sprintf("规则求值异常（%v），需要人工复核", r)
		}
	}()

	// 管辖范围不匹配的规则直接判 NOT_APPLICABLE
	if !jurisdictionApplies(rule.Jurisdiction, ev.Countries()) {
		result.Verdict = VerdictNotApplicable
		result.Confidence = 1.0
		result.Reasoning = fmt.Sprintf("管辖范围 %s 与证据中的地域（%s）不相关", rule.Jurisdiction, strings.Join(ev.Countries(), ", "))
		return result
	}

	refs := make(map[string]struct{})
	val, err := evalNode(rule.Logic, ev, refs)
	result.EvidenceRefs = sortedRefs(refs)

	if err != nil {
		log.Printf("⚠️ 规则 %s 求值失败: %v", rule.Name, err)
		result.Verdict = VerdictRequiresReview
		result.Confidence = 0.0
		result.Errored = true
		result.Reasoning = fmt.Sprintf("规则求值失败（%v），需要人工复核", err)
		return result
	}

	if val.missing {
		result.Verdict = VerdictRequiresReview
		result.Reasoning = fmt.Sprintf("关键证据缺失，无法判定 %s 的适用性，需要人工复核", rule.Name)
		return result
	}

	switch v := val.v.(type) {
	case string:
		verdict := Verdict(v)
		if !verdict.IsValid() {
			result.Verdict = VerdictRequiresReview
			result.Confidence = 0.0
			result.Errored = true
			result.Reasoning = fmt.Sprintf("规则产出了未知结论 %q，需要人工复核", v)
			return result
		}
		result.Verdict = verdict
	case bool:
		// 约定：裸布尔规则表达"要求已满足"
		if v {
			result.Verdict = VerdictCompliant
		} else {
			result.Verdict = VerdictNonCompliant
		}
	default:
		result.Verdict = VerdictRequiresReview
		result.Confidence = 0.0
		result.Errored = true
		result.Reasoning = fmt.Sprintf("规则逻辑产出了非结论值（%T），需要人工复核", val.v)
		return result
	}

	result.Reasoning = buildReasoning(rule, result.Verdict, result.EvidenceRefs)
	return result
}

// EvaluateAll 评估全部规则，结果按 regulation_id 排序保证输出确定性
func EvaluateAll(store *Store, ev *evidence.Evidence) []RuleResult {
	results := make([]RuleResult, 0, len(store.Rules()))
	for _, rule := range store.Rules() {
		rule := rule
		results = append(results, Evaluate(&rule, ev))
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].RegulationID < results[j].RegulationID
	})
	return results
}

// buildReasoning 生成确定性的结论说明（模板拼接，不经过 LLM）
func buildReasoning(rule *ComplianceRule, verdict Verdict, refs []string) string {
	base := fmt.Sprintf("%s（%s）判定为 %s", rule.Name, rule.Jurisdiction, verdict)
	if len(refs) == 0 {
		return base + "，未引用任何证据信号"
	}
	return fmt.Sprintf("%s，依据 %d 项证据信号: %s", base, len(refs), strings.Join(refs, ", "))
}

// evalNode 递归求值，missing 沿比较和布尔运算按三值逻辑传播
func evalNode(n *Node, ev *evidence.Evidence, refs map[string]struct{}) (triValue, error) {
	if n == nil {
		return missingValue, fmt.Errorf("nil logic node")
	}

	switch n.Kind {
	case KindLiteral:
		return triValue{v: n.Literal}, nil

	case KindList:
		items := make([]any, 0, len(n.Items))
		for _, item := range n.Items {
			v, err := evalNode(item, ev, refs)
			if err != nil {
				return missingValue, err
			}
			if v.missing {
				return missingValue, nil
			}
			items = append(items, v.v)
		}
		return triValue{v: items}, nil

	case KindVar:
		// 未注册的路径是规则写错了，按错误处理；
		// 已注册但这份证据里没有的路径才是 missing
		if !evidence.IsKnownPath(n.Path) {
			return missingValue, fmt.Errorf("unknown evidence path %q", n.Path)
		}
		v, present := ev.Lookup(n.Path)
		if !present {
			return missingValue, nil
		}
		refs[n.Path] = struct{}{}
		return triValue{v: v}, nil

	case KindAnd:
		return evalAnd(n.Items, ev, refs)

	case KindOr:
		return evalOr(n.Items, ev, refs)

	case KindNot:
		v, err := evalNode(n.Items[0], ev, refs)
		if err != nil {
			return missingValue, err
		}
		if v.missing {
			return missingValue, nil
		}
		b, err := asBool(v.v)
		if err != nil {
			return missingValue, err
		}
		return triValue{v: !b}, nil

	case KindIf:
		cond, err := evalNode(n.Items[0], ev, refs)
		if err != nil {
			return missingValue, err
		}
		if cond.missing {
			return missingValue, nil
		}
		b, err := asBool(cond.v)
		if err != nil {
			return missingValue, err
		}
		if b {
			return evalNode(n.Items[1], ev, refs)
		}
		return evalNode(n.Items[2], ev, refs)

	case KindCompare:
		return evalCompare(n, ev, refs)
	}

	return missingValue, fmt.Errorf("unknown node kind %d", n.Kind)
}

// evalAnd Kleene 三值与：有 false 即 false，全 true 才 true，否则 missing
func evalAnd(items []*Node, ev *evidence.Evidence, refs map[string]struct{}) (triValue, error) {
	anyMissing := false
	for _, item := range items {
		v, err := evalNode(item, ev, refs)
		if err != nil {
			return missingValue, err
		}
		if v.missing {
			anyMissing = true
			continue
		}
		b, err := asBool(v.v)
		if err != nil {
			return missingValue, err
		}
		if !b {
			return triValue{v: false}, nil
		}
	}
	if anyMissing {
		return missingValue, nil
	}
	return triValue{v: true}, nil
}

// evalOr Kleene 三值或：有 true 即 true，全 false 才 false，否则 missing
func evalOr(items []*Node, ev *evidence.Evidence, refs map[string]struct{}) (triValue, error) {
	anyMissing := false
	for _, item := range items {
		v, err := evalNode(item, ev, refs)
		if err != nil {
			return missingValue, err
		}
		if v.missing {
			anyMissing = true
			continue
		}
		b, err := asBool(v.v)
		if err != nil {
			return missingValue, err
		}
		if b {
			return triValue{v: true}, nil
		}
	}
	if anyMissing {
		return missingValue, nil
	}
	return triValue{v: false}, nil
}

func evalCompare(n *Node, ev *evidence.Evidence, refs map[string]struct{}) (triValue, error) {
	left, err := evalNode(n.Items[0], ev, refs)
	if err != nil {
		return missingValue, err
	}
	right, err := evalNode(n.Items[1], ev, refs)
	if err != nil {
		return missingValue, err
	}
	// 任一侧缺失，比较结果就是缺失——绝不静默当作 false
	if left.missing || right.missing {
		return missingValue, nil
	}

	switch n.Op {
	case "==", "!=":
		eq, err := scalarEqual(left.v, right.v)
		if err != nil {
			return missingValue, err
		}
		if n.Op == "!=" {
			eq = !eq
		}
		return triValue{v: eq}, nil

	case ">", ">=", "<", "<=":
		l, lok := left.v.(float64)
		r, rok := right.v.(float64)
		if !lok || !rok {
			return missingValue, fmt.Errorf("operator %s needs numeric operands, got %T and %T", n.Op, left.v, right.v)
		}
		var b bool
		switch n.Op {
		case ">":
			b = l > r
		case ">=":
			b = l >= r
		case "<":
			b = l < r
		case "<=":
			b = l <= r
		}
		return triValue{v: b}, nil

	case "in":
		return evalIn(left.v, right.v)
	}

	return missingValue, fmt.Errorf("unknown compare operator %q", n.Op)
}

// evalIn 成员判断：右侧是列表时查成员，是字符串时查子串
func evalIn(item, collection any) (triValue, error) {
	switch coll := collection.(type) {
	case []string:
		s, ok := item.(string)
		if !ok {
			return missingValue, fmt.Errorf("in: left operand must be a string for string-list membership, got %T", item)
		}
		for _, c := range coll {
			if c == s {
				return triValue{v: true}, nil
			}
		}
		return triValue{v: false}, nil
	case []any:
		for _, c := range coll {
			eq, err := scalarEqual(item, c)
			if err != nil {
				return missingValue, err
			}
			if eq {
				return triValue{v: true}, nil
			}
		}
		return triValue{v: false}, nil
	case string:
		s, ok := item.(string)
		if !ok {
			return missingValue, fmt.Errorf("in: left operand must be a string for substring check, got %T", item)
		}
		return triValue{v: strings.Contains(coll, s)}, nil
	}
	return missingValue, fmt.Errorf("in: right operand must be a list or string, got %T", collection)
}

func scalarEqual(a, b any) (bool, error) {
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		if !ok {
			return false, nil
		}
		return x == y, nil
	case string:
		y, ok := b.(string)
		if !ok {
			return false, nil
		}
		return x == y, nil
	case bool:
		y, ok := b.(bool)
		if !ok {
			return false, nil
		}
		return x == y, nil
	}
	return false, fmt.Errorf("cannot compare values of type %T", a)
}

func asBool(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
	return b, nil
}

func sortedRefs(refs map[string]struct{}) []string {
	out := make([]string, 0, len(refs))
	for r := range refs {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// euMembers 欧盟成员国（含证据里直接写 EU 的情况）
var euMembers = map[string]struct{}{
	"EU": {}, "AT": {}, "BE": {}, "BG": {}, "HR": {}, "CY": {}, "CZ": {},
	"DK": {}, "EE": {}, "FI": {}, "FR": {}, "DE": {}, "GR": {}, "HU": {},
	"IE": {}, "IT": {}, "LV": {}, "LT": {}, "LU": {}, "MT": {}, "NL": {},
	"PL": {}, "PT": {}, "RO": {}, "SK": {}, "SI": {}, "ES": {}, "SE": {},
}

// jurisdictionApplies 判断规则管辖范围是否覆盖证据中出现的地域
// 证据里完全没有地域信息时规则仍然适用：
// 缺少地理证据不能成为豁免审查的理由
func jurisdictionApplies(jurisdiction string, countries []string) bool {
	jur := strings.ToUpper(strings.TrimSpace(jurisdiction))
	if jur == "" || jur == "GLOBAL" {
		return true
	}
	if len(countries) == 0 {
		return true
	}

	// "US-UT" 形式只取国家部分做匹配
	if i := strings.Index(jur, "-"); i > 0 {
		jur = jur[:i]
	}

	for _, c := range countries {
		c = strings.ToUpper(c)
		if c == jur {
			return true
		}
		if jur == "EU" {
			if _, ok := euMembers[c]; ok {
				return true
			}
		}
	}
	return false
}
