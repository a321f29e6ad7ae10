// Package verdict 把一组规则结果聚合为 feature 级最终判定
package verdict

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cdsgo/cds/pkg/evidence"
	"github.com/cdsgo/cds/pkg/rules"
	"github.com/cdsgo/cds/pkg/scoring"
)

// Recommendation 针对一条未通过规则的整改建议
type Recommendation struct {
	Priority     rules.Priority `json:"priority"`
	Action       string         `json:"action"`
	RegulationID string         `json:"regulation_id"`
	EvidenceGap  string         `json:"evidence_gap"`
}

// FeatureVerdict 一个 feature 一次分析运行的最终判定
// 构造完成后按值对象处理，下游只读
type FeatureVerdict struct {
	FeatureID       string            `json:"feature_id"`
	OverallVerdict  rules.Verdict     `json:"overall_verdict"`
	ConfidenceScore float64           `json:"confidence_score"`
	RiskLevel       rules.Priority    `json:"risk_level"`
	RuleResults     []rules.RuleResult `json:"rule_results"`
	Recommendations []Recommendation  `json:"recommendations"`
	CreatedAt       time.Time         `json:"created_at"`
}

// Aggregate 聚合规则结果：
// 任意 HIGH/CRITICAL 的 NON_COMPLIANT 一票否决，
// 其次 REQUIRES_REVIEW 或灰色地带置信度触发人工复核，
// 全部合规才算 COMPLIANT，没有适用规则则 NOT_APPLICABLE
func Aggregate(featureID string, results []rules.RuleResult, store *rules.Store, ev *evidence.Evidence, now time.Time) *FeatureVerdict {
	fv := &FeatureVerdict{
		FeatureID:       featureID,
		RuleResults:     results,
		ConfidenceScore: scoring.Aggregate(results),
		RiskLevel:       rules.PriorityLow,
		Recommendations: []Recommendation{},
		CreatedAt:       now,
	}

	var (
		hasApplicable   bool
		hasBlockingNC   bool
		hasMinorNC      bool
		hasReview       bool
		allCompliant    = true
		highestPriority rules.Priority
	)
	for _, r := range results {
		if r.Verdict == rules.VerdictNotApplicable {
			continue
		}
		hasApplicable = true
		if r.Verdict != rules.VerdictCompliant {
			allCompliant = false
		}
		switch r.Verdict {
		case rules.VerdictNonCompliant:
			if r.Priority == rules.PriorityHigh || r.Priority == rules.PriorityCritical {
				hasBlockingNC = true
			} else {
				hasMinorNC = true
			}
			fv.Recommendations = append(fv.Recommendations, buildRecommendation(r, store, ev))
		case rules.VerdictRequiresReview:
			hasReview = true
			fv.Recommendations = append(fv.Recommendations, buildRecommendation(r, store, ev))
		}
		if r.Verdict == rules.VerdictNonCompliant || r.Verdict == rules.VerdictRequiresReview {
			if r.Priority.Rank() > highestPriority.Rank() {
				highestPriority = r.Priority
			}
		}
	}

	// 低优先级的违规不足以一票否决，但也不能放过，降级为人工复核
	switch {
	case hasBlockingNC:
		fv.OverallVerdict = rules.VerdictNonCompliant
	case hasReview || hasMinorNC || (hasApplicable && scoring.IsGray(fv.ConfidenceScore)):
		fv.OverallVerdict = rules.VerdictRequiresReview
	case hasApplicable && allCompliant:
		fv.OverallVerdict = rules.VerdictCompliant
	default:
		fv.OverallVerdict = rules.VerdictNotApplicable
	}

	if highestPriority.Rank() > 0 {
		fv.RiskLevel = highestPriority
	}

	// 建议按优先级降序排列，同级按 regulation_id 升序，保证可复现
	sort.SliceStable(fv.Recommendations, func(i, j int) bool {
		if fv.Recommendations[i].Priority.Rank() != fv.Recommendations[j].Priority.Rank() {
			return fv.Recommendations[i].Priority.Rank() > fv.Recommendations[j].Priority.Rank()
		}
		return fv.Recommendations[i].RegulationID < fv.Recommendations[j].RegulationID
	})

	return fv
}

func buildRecommendation(r rules.RuleResult, store *rules.Store, ev *evidence.Evidence) Recommendation {
	rec := Recommendation{
		Priority:     r.Priority,
		RegulationID: r.RegulationID,
		EvidenceGap:  describeGaps(ev),
	}
	if rule, ok := store.Get(r.RegulationID); ok && len(rule.RequiresControls) > 0 {
		rec.Action = fmt.Sprintf("落实控制项: %s", strings.Join(rule.RequiresControls, ", "))
	} else if r.Verdict == rules.VerdictRequiresReview {
		rec.Action = "补充证据并提交人工复核"
	} else {
		rec.Action = "修复不合规实现并重新扫描"
	}
	return rec
}

// describeGaps 列出证据里缺失的信号类别
func describeGaps(ev *evidence.Evidence) string {
	var gaps []string
	if len(ev.Static.GeoBranching) == 0 {
		gaps = append(gaps, "geo_branching")
	}
	if len(ev.Static.AgeChecks) == 0 {
		gaps = append(gaps, "age_checks")
	}
	if len(ev.Static.DataResidency) == 0 {
		gaps = append(gaps, "data_residency")
	}
	if len(ev.Static.ReportingClients) == 0 {
		gaps = append(gaps, "reporting_clients")
	}
	if len(ev.Static.Flags) == 0 {
		gaps = append(gaps, "flags")
	}
	if ev.Runtime == nil {
		gaps = append(gaps, "runtime")
	}
	if len(gaps) == 0 {
		return "证据完整，结论置信度不足"
	}
	return "缺失证据类别: " + strings.Join(gaps, ", ")
}
