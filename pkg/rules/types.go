package rules

import "fmt"

// Verdict 单条规则或整个 feature 的合规结论
type Verdict string

const (
	VerdictCompliant      Verdict = "COMPLIANT"
	VerdictNonCompliant   Verdict = "NON_COMPLIANT"
	VerdictRequiresReview Verdict = "REQUIRES_REVIEW"
	VerdictNotApplicable  Verdict = "NOT_APPLICABLE"
)

// IsValid 判断是否为四个合法结论之一
func (v Verdict) IsValid() bool {
	switch v {
	case VerdictCompliant, VerdictNonCompliant, VerdictRequiresReview, VerdictNotApplicable:
		return true
	}
	return false
}

// Priority 规则优先级
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// IsValid 判断是否为四个合法优先级之一
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Rank 优先级排序权重，CRITICAL 最高
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// ConfidenceFactors 规则的三个置信度权重，加载时校验和为 1.0
type ConfidenceFactors struct {
	GeoSpecificity        float64 `yaml:"geo_specificity" json:"geo_specificity"`
	AgeVerification       float64 `yaml:"age_verification" json:"age_verification"`
	ImplementationQuality float64 `yaml:"implementation_quality" json:"implementation_quality"`
}

// Sum 三个权重之和
func (f ConfidenceFactors) Sum() float64 {
	return f.GeoSpecificity + f.AgeVerification + f.ImplementationQuality
}

// ComplianceRule 一条法规条款的机器可检查定义
// 规则是数据不是代码：由 YAML 配置加载，进程内只读
type ComplianceRule struct {
	RegulationID      string            `yaml:"regulation_id" json:"regulation_id"`
	Name              string            `yaml:"name" json:"name"`
	Jurisdiction      string            `yaml:"jurisdiction" json:"jurisdiction"`
	Logic             *Node             `yaml:"logic" json:"-"`
	ConfidenceFactors ConfidenceFactors `yaml:"confidence_factors" json:"confidence_factors"`
	Priority          Priority          `yaml:"priority" json:"priority"`
	RequiresControls  []string          `yaml:"requires_controls,omitempty" json:"requires_controls,omitempty"`
	Regulations       []string          `yaml:"regulations,omitempty" json:"regulations,omitempty"`
}

// RuleResult 单条规则对一份证据的评估结果
type RuleResult struct {
	RegulationID string   `json:"regulation_id"`
	Verdict      Verdict  `json:"verdict"`
	Confidence   float64  `json:"confidence"`
	Reasoning    string   `json:"reasoning"`
	EvidenceRefs []string `json:"evidence_refs"`
	Priority     Priority `json:"priority"`
	// Errored 为 true 时置信度固定为 0，打分阶段不再覆盖
	Errored bool `json:"errored,omitempty"`
}

// ConfigError 规则配置错误，加载阶段致命：不做部分加载
type ConfigError struct {
	RuleID string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.RuleID == "" {
		return fmt.Sprintf("rules config error: %s", e.Reason)
	}
	return fmt.Sprintf("rule %s: %s", e.RuleID, e.Reason)
}

// rulesConfig 规则配置文件结构
type rulesConfig struct {
	Version string           `yaml:"version"`
	Rules   []ComplianceRule `yaml:"rules"`
}
