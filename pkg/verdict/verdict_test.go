package verdict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdsgo/cds/pkg/evidence"
	"github.com/cdsgo/cds/pkg/rules"
)

var fixedNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func emptyStore(t *testing.T) *rules.Store {
	t.Helper()
	store, err := rules.Parse([]byte(`
version: "1.0"
rules:
  - regulation_id: low_rule
    name: Low Rule
    priority: LOW
    requires_controls: [basic_logging]
    confidence_factors: {geo_specificity: 1.0, age_verification: 0.0, implementation_quality: 0.0}
    logic: {">=": [{var: static.flags.length}, 1]}
  - regulation_id: high_rule
    name: High Rule
    priority: HIGH
    requires_controls: [age_verification, curfew_enforcement]
    confidence_factors: {geo_specificity: 1.0, age_verification: 0.0, implementation_quality: 0.0}
    logic: {">=": [{var: static.flags.length}, 1]}
`))
	require.NoError(t, err)
	return store
}

func bareEvidence() *evidence.Evidence {
	return evidence.New("f", evidence.StaticSignals{}, nil, evidence.Metadata{})
}

// TestAggregate_HighPriorityNCWins 一条 HIGH 级 NON_COMPLIANT 一票否决
func TestAggregate_HighPriorityNCWins(t *testing.T) {
	results := []rules.RuleResult{
		{RegulationID: "low_rule", Verdict: rules.VerdictCompliant, Confidence: 0.9, Priority: rules.PriorityLow},
		{RegulationID: "high_rule", Verdict: rules.VerdictNonCompliant, Confidence: 0.8, Priority: rules.PriorityHigh},
	}
	fv := Aggregate("f", results, emptyStore(t), bareEvidence(), fixedNow)

	assert.Equal(t, rules.VerdictNonCompliant, fv.OverallVerdict)
	assert.Equal(t, rules.PriorityHigh, fv.RiskLevel)
	require.Len(t, fv.Recommendations, 1)
	assert.Equal(t, "high_rule", fv.Recommendations[0].RegulationID)
	assert.Contains(t, fv.Recommendations[0].Action, "curfew_enforcement")
}

// TestAggregate_CriticalNeverAveragedAway 再多 COMPLIANT 也盖不掉 CRITICAL 违规
func TestAggregate_CriticalNeverAveragedAway(t *testing.T) {
	results := []rules.RuleResult{
		{RegulationID: "c1", Verdict: rules.VerdictCompliant, Confidence: 1.0, Priority: rules.PriorityLow},
		{RegulationID: "c2", Verdict: rules.VerdictCompliant, Confidence: 1.0, Priority: rules.PriorityLow},
		{RegulationID: "c3", Verdict: rules.VerdictCompliant, Confidence: 1.0, Priority: rules.PriorityLow},
		{RegulationID: "bad", Verdict: rules.VerdictNonCompliant, Confidence: 0.9, Priority: rules.PriorityCritical},
	}
	fv := Aggregate("f", results, emptyStore(t), bareEvidence(), fixedNow)
	assert.Equal(t, rules.VerdictNonCompliant, fv.OverallVerdict)
	assert.Equal(t, rules.PriorityCritical, fv.RiskLevel)
}

// TestAggregate_LowPriorityNCIsReview 只有低优先级违规时降为人工复核
func TestAggregate_LowPriorityNCIsReview(t *testing.T) {
	results := []rules.RuleResult{
		{RegulationID: "low_rule", Verdict: rules.VerdictNonCompliant, Confidence: 0.8, Priority: rules.PriorityLow},
	}
	fv := Aggregate("f", results, emptyStore(t), bareEvidence(), fixedNow)
	assert.NotEqual(t, rules.VerdictNonCompliant, fv.OverallVerdict)
	assert.Equal(t, rules.VerdictRequiresReview, fv.OverallVerdict)
}

// TestAggregate_GrayBandForcesReview 全部合规但聚合置信度在灰色地带时复核
func TestAggregate_GrayBandForcesReview(t *testing.T) {
	results := []rules.RuleResult{
		{RegulationID: "low_rule", Verdict: rules.VerdictCompliant, Confidence: 0.5, Priority: rules.PriorityLow},
	}
	fv := Aggregate("f", results, emptyStore(t), bareEvidence(), fixedNow)
	assert.Equal(t, rules.VerdictRequiresReview, fv.OverallVerdict)
}

// TestAggregate_AllCompliant 高置信度全合规
func TestAggregate_AllCompliant(t *testing.T) {
	results := []rules.RuleResult{
		{RegulationID: "low_rule", Verdict: rules.VerdictCompliant, Confidence: 0.95, Priority: rules.PriorityLow},
		{RegulationID: "high_rule", Verdict: rules.VerdictCompliant, Confidence: 0.9, Priority: rules.PriorityHigh},
	}
	fv := Aggregate("f", results, emptyStore(t), bareEvidence(), fixedNow)
	assert.Equal(t, rules.VerdictCompliant, fv.OverallVerdict)
	assert.Equal(t, rules.PriorityLow, fv.RiskLevel)
	assert.Empty(t, fv.Recommendations)
}

// TestAggregate_AllNotApplicable 没有适用规则时判 NOT_APPLICABLE，置信度 1.0
func TestAggregate_AllNotApplicable(t *testing.T) {
	results := []rules.RuleResult{
		{RegulationID: "low_rule", Verdict: rules.VerdictNotApplicable, Confidence: 1.0, Priority: rules.PriorityLow},
	}
	fv := Aggregate("f", results, emptyStore(t), bareEvidence(), fixedNow)
	assert.Equal(t, rules.VerdictNotApplicable, fv.OverallVerdict)
	assert.Equal(t, 1.0, fv.ConfidenceScore)
	assert.Equal(t, rules.PriorityLow, fv.RiskLevel)
}

// TestAggregate_RecommendationOrdering 建议按优先级降序、regulation_id 升序
// 输入顺序打乱也不影响输出顺序
func TestAggregate_RecommendationOrdering(t *testing.T) {
	results := []rules.RuleResult{
		{RegulationID: "bbb", Verdict: rules.VerdictRequiresReview, Confidence: 0.5, Priority: rules.PriorityMedium},
		{RegulationID: "aaa", Verdict: rules.VerdictRequiresReview, Confidence: 0.5, Priority: rules.PriorityMedium},
		{RegulationID: "zzz", Verdict: rules.VerdictNonCompliant, Confidence: 0.5, Priority: rules.PriorityCritical},
	}
	shuffled := []rules.RuleResult{results[2], results[0], results[1]}

	first := Aggregate("f", results, emptyStore(t), bareEvidence(), fixedNow)
	second := Aggregate("f", shuffled, emptyStore(t), bareEvidence(), fixedNow)

	var order []string
	for _, rec := range first.Recommendations {
		order = append(order, rec.RegulationID)
	}
	assert.Equal(t, []string{"zzz", "aaa", "bbb"}, order)

	var orderShuffled []string
	for _, rec := range second.Recommendations {
		orderShuffled = append(orderShuffled, rec.RegulationID)
	}
	assert.Equal(t, order, orderShuffled)
}

// TestAggregate_EvidenceGapNamesCategories 建议里点名缺失的证据类别
func TestAggregate_EvidenceGapNamesCategories(t *testing.T) {
	results := []rules.RuleResult{
		{RegulationID: "high_rule", Verdict: rules.VerdictNonCompliant, Confidence: 0.5, Priority: rules.PriorityHigh},
	}
	fv := Aggregate("f", results, emptyStore(t), bareEvidence(), fixedNow)
	require.Len(t, fv.Recommendations, 1)
	gap := fv.Recommendations[0].EvidenceGap
	assert.Contains(t, gap, "age_checks")
	assert.Contains(t, gap, "runtime")
}

// TestAggregate_ImmutableTimestamp 判定带上传入的创建时间
func TestAggregate_ImmutableTimestamp(t *testing.T) {
	fv := Aggregate("f", nil, emptyStore(t), bareEvidence(), fixedNow)
	assert.Equal(t, fixedNow, fv.CreatedAt)
}
