// Package scoring 为规则评估结果计算置信度
// 置信度 = 规则权重与三个证据子分数的加权和，落在 [0,1]
package scoring

import (
	"math"
	"strings"

	"github.com/montanaflynn/stats"

	"github.com/cdsgo/cds/pkg/evidence"
	"github.com/cdsgo/cds/pkg/rules"
)

// 置信度分段阈值
// 产品调优常量而非硬不变量，允许按部署环境覆盖
var (
	BandClearThreshold  = 0.90 // [0.90,1.0] 法规明确适用
	BandStrongThreshold = 0.75 // [0.75,0.90) 适用但证据有缺口
	BandGrayThreshold   = 0.40 // [0.40,0.75) 灰色地带，需要人工复核
)

// Band 置信度分段
type Band string

const (
	BandClear  Band = "CLEAR"  // 法规明确适用
	BandStrong Band = "STRONG" // 适用但证据有缺口
	BandGray   Band = "GRAY"   // 灰色地带
	BandNone   Band = "NONE"   // 未检出合规要求
)

// Classify 把置信度映射到分段
func Classify(confidence float64) Band {
	switch {
	case confidence >= BandClearThreshold:
		return BandClear
	case confidence >= BandStrongThreshold:
		return BandStrong
	case confidence >= BandGrayThreshold:
		return BandGray
	default:
		return BandNone
	}
}

// IsGray 置信度是否落在灰色地带
func IsGray(confidence float64) bool {
	return Classify(confidence) == BandGray
}

// ScoreRule 为单条规则结果计算置信度并写回
// NOT_APPLICABLE 与求值出错的结果保持原值不覆盖
func ScoreRule(rule *rules.ComplianceRule, res *rules.RuleResult, ev *evidence.Evidence) {
	if res.Errored || res.Verdict == rules.VerdictNotApplicable {
		return
	}
	f := rule.ConfidenceFactors
	score := f.GeoSpecificity*geoScore(res, ev) +
		f.AgeVerification*ageScore(ev) +
		f.ImplementationQuality*ev.QualityScore()
	res.Confidence = round2(clamp01(score))
}

// Apply 为一组规则结果批量计算置信度
// 结果里找不到对应规则的条目保持原值
func Apply(store *rules.Store, results []rules.RuleResult, ev *evidence.Evidence) {
	for i := range results {
		rule, ok := store.Get(results[i].RegulationID)
		if !ok {
			continue
		}
		ScoreRule(rule, &results[i], ev)
	}
}

// Aggregate 计算 feature 级聚合置信度：
// 对所有非 NOT_APPLICABLE 结果的置信度取均值；
// 全部不适用时返回 1.0（确信没有法规适用也是一种确定性）
func Aggregate(results []rules.RuleResult) float64 {
	var values []float64
	for _, r := range results {
		if r.Verdict == rules.VerdictNotApplicable {
			continue
		}
		values = append(values, r.Confidence)
	}
	if len(values) == 0 {
		return 1.0
	}
	mean, err := stats.Mean(values)
	if err != nil {
		return 0.0
	}
	return round2(mean)
}

// geoScore 地域特异性子分数：
// 规则逻辑触达了 geo_branching 且国家集非空记 1.0，
// 触达但国家集为空记 0.5，未触达记 0.0
func geoScore(res *rules.RuleResult, ev *evidence.Evidence) float64 {
	touched := false
	for _, ref := range res.EvidenceRefs {
		if strings.HasPrefix(ref, "static.geo_branching") {
			touched = true
			break
		}
	}
	if !touched {
		return 0.0
	}
	for _, g := range ev.Static.GeoBranching {
		if len(g.Countries) > 0 {
			return 1.0
		}
	}
	return 0.5
}

// ageScore 年龄验证子分数：
// 存在 validation/enforcement 类型的检查记 1.0，
// 只有 collection 类型记 0.5，没有年龄检查记 0.0
func ageScore(ev *evidence.Evidence) float64 {
	if len(ev.Static.AgeChecks) == 0 {
		return 0.0
	}
	for _, c := range ev.Static.AgeChecks {
		if c.VerificationType == evidence.VerificationValidation || c.VerificationType == evidence.VerificationEnforcement {
			return 1.0
		}
	}
	return 0.5
}

func clamp01(v float64) float64 {
	return math.Max(0.0, math.Min(1.0, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
