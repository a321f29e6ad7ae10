package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdsgo/cds/pkg/evidence"
	"github.com/cdsgo/cds/pkg/rules"
)

func scoringRule(factors rules.ConfidenceFactors) *rules.ComplianceRule {
	return &rules.ComplianceRule{
		RegulationID:      "score_rule",
		Name:              "Scoring Rule",
		ConfidenceFactors: factors,
		Priority:          rules.PriorityMedium,
	}
}

// TestScoreRule_EmptyEvidence 全空证据的置信度为 0
func TestScoreRule_EmptyEvidence(t *testing.T) {
	ev := evidence.New("empty", evidence.StaticSignals{}, nil, evidence.Metadata{})
	require.Equal(t, 0.0, ev.QualityScore())

	res := rules.RuleResult{
		RegulationID: "score_rule",
		Verdict:      rules.VerdictRequiresReview,
		EvidenceRefs: []string{"static.age_checks.length"},
	}
	ScoreRule(scoringRule(rules.ConfidenceFactors{GeoSpecificity: 0.3, AgeVerification: 0.4, ImplementationQuality: 0.3}), &res, ev)
	assert.LessOrEqual(t, res.Confidence, 0.3)
	assert.Equal(t, 0.0, res.Confidence)
}

// TestScoreRule_StrongEvidence 地理信号 + enforcement 年龄检查 + 运行时
// 0.3*1.0 + 0.4*1.0 + 0.3*0.5 = 0.85
func TestScoreRule_StrongEvidence(t *testing.T) {
	static := evidence.StaticSignals{
		GeoBranching: []evidence.GeoSignal{{Countries: []string{"US"}}},
		AgeChecks:    []evidence.AgeCheckSignal{{VerificationType: evidence.VerificationEnforcement}},
	}
	ev := evidence.New("strong", static, &evidence.RuntimeSignals{}, evidence.Metadata{})
	require.Equal(t, 0.5, ev.QualityScore())

	res := rules.RuleResult{
		RegulationID: "score_rule",
		Verdict:      rules.VerdictCompliant,
		EvidenceRefs: []string{"static.geo_branching.length", "static.age_checks.verification_types"},
	}
	ScoreRule(scoringRule(rules.ConfidenceFactors{GeoSpecificity: 0.3, AgeVerification: 0.4, ImplementationQuality: 0.3}), &res, ev)
	assert.InDelta(t, 0.85, res.Confidence, 1e-9)
}

// TestScoreRule_GeoTouchedButEmpty 触达 geo 但国家集为空记 0.5
func TestScoreRule_GeoTouchedButEmpty(t *testing.T) {
	static := evidence.StaticSignals{
		GeoBranching: []evidence.GeoSignal{{File: "a.py", Countries: nil}},
	}
	ev := evidence.New("vague_geo", static, nil, evidence.Metadata{})

	res := rules.RuleResult{
		RegulationID: "score_rule",
		Verdict:      rules.VerdictCompliant,
		EvidenceRefs: []string{"static.geo_branching.length"},
	}
	ScoreRule(scoringRule(rules.ConfidenceFactors{GeoSpecificity: 1.0}), &res, ev)
	assert.InDelta(t, 0.5, res.Confidence, 1e-9)
}

// TestScoreRule_GeoNotTouched 逻辑没触达 geo 时地理子分数为 0
func TestScoreRule_GeoNotTouched(t *testing.T) {
	static := evidence.StaticSignals{
		GeoBranching: []evidence.GeoSignal{{Countries: []string{"US"}}},
	}
	ev := evidence.New("untouched", static, nil, evidence.Metadata{})

	res := rules.RuleResult{
		RegulationID: "score_rule",
		Verdict:      rules.VerdictCompliant,
		EvidenceRefs: []string{"static.reco_system"},
	}
	ScoreRule(scoringRule(rules.ConfidenceFactors{GeoSpecificity: 1.0}), &res, ev)
	assert.Equal(t, 0.0, res.Confidence)
}

// TestScoreRule_AgeMonotonicity 加入 enforcement 年龄检查绝不降低置信度
func TestScoreRule_AgeMonotonicity(t *testing.T) {
	factors := rules.ConfidenceFactors{GeoSpecificity: 0.3, AgeVerification: 0.4, ImplementationQuality: 0.3}
	refs := []string{"static.age_checks.length"}

	base := evidence.StaticSignals{
		AgeChecks: []evidence.AgeCheckSignal{{VerificationType: evidence.VerificationCollection}},
	}
	withEnforcement := evidence.StaticSignals{
		AgeChecks: []evidence.AgeCheckSignal{
			{VerificationType: evidence.VerificationCollection},
			{VerificationType: evidence.VerificationEnforcement},
		},
	}

	before := rules.RuleResult{RegulationID: "score_rule", Verdict: rules.VerdictCompliant, EvidenceRefs: refs}
	after := rules.RuleResult{RegulationID: "score_rule", Verdict: rules.VerdictCompliant, EvidenceRefs: refs}
	ScoreRule(scoringRule(factors), &before, evidence.New("before", base, nil, evidence.Metadata{}))
	ScoreRule(scoringRule(factors), &after, evidence.New("after", withEnforcement, nil, evidence.Metadata{}))

	assert.GreaterOrEqual(t, after.Confidence, before.Confidence)
}

// TestScoreRule_OnlyCollection 只有 collection 类型记 0.5
func TestScoreRule_OnlyCollection(t *testing.T) {
	static := evidence.StaticSignals{
		AgeChecks: []evidence.AgeCheckSignal{{VerificationType: evidence.VerificationCollection}},
	}
	ev := evidence.New("collect_only", static, nil, evidence.Metadata{})

	res := rules.RuleResult{RegulationID: "score_rule", Verdict: rules.VerdictCompliant}
	ScoreRule(scoringRule(rules.ConfidenceFactors{AgeVerification: 1.0}), &res, ev)
	assert.InDelta(t, 0.5, res.Confidence, 1e-9)
}

// TestScoreRule_SkipsErroredAndNA 出错和不适用的结果保持原有置信度
func TestScoreRule_SkipsErroredAndNA(t *testing.T) {
	ev := evidence.New("skip", evidence.StaticSignals{
		AgeChecks: []evidence.AgeCheckSignal{{VerificationType: evidence.VerificationEnforcement}},
	}, nil, evidence.Metadata{})

	errored := rules.RuleResult{Verdict: rules.VerdictRequiresReview, Errored: true}
	ScoreRule(scoringRule(rules.ConfidenceFactors{AgeVerification: 1.0}), &errored, ev)
	assert.Equal(t, 0.0, errored.Confidence)

	na := rules.RuleResult{Verdict: rules.VerdictNotApplicable, Confidence: 1.0}
	ScoreRule(scoringRule(rules.ConfidenceFactors{AgeVerification: 1.0}), &na, ev)
	assert.Equal(t, 1.0, na.Confidence)
}

// TestAggregate_MeanExcludesNA 聚合只对非 NOT_APPLICABLE 取均值
func TestAggregate_MeanExcludesNA(t *testing.T) {
	results := []rules.RuleResult{
		{Verdict: rules.VerdictCompliant, Confidence: 0.8},
		{Verdict: rules.VerdictNonCompliant, Confidence: 0.6},
		{Verdict: rules.VerdictNotApplicable, Confidence: 1.0},
	}
	assert.InDelta(t, 0.7, Aggregate(results), 1e-9)
}

// TestAggregate_AllNA 全部不适用时聚合置信度为 1.0
func TestAggregate_AllNA(t *testing.T) {
	results := []rules.RuleResult{
		{Verdict: rules.VerdictNotApplicable, Confidence: 1.0},
		{Verdict: rules.VerdictNotApplicable, Confidence: 1.0},
	}
	assert.Equal(t, 1.0, Aggregate(results))
	assert.Equal(t, 1.0, Aggregate(nil))
}

// TestClassify_Bands 置信度分段边界
func TestClassify_Bands(t *testing.T) {
	assert.Equal(t, BandClear, Classify(1.0))
	assert.Equal(t, BandClear, Classify(0.90))
	assert.Equal(t, BandStrong, Classify(0.89))
	assert.Equal(t, BandStrong, Classify(0.75))
	assert.Equal(t, BandGray, Classify(0.74))
	assert.Equal(t, BandGray, Classify(0.40))
	assert.Equal(t, BandNone, Classify(0.39))
	assert.Equal(t, BandNone, Classify(0.0))

	assert.True(t, IsGray(0.5))
	assert.False(t, IsGray(0.95))
}
