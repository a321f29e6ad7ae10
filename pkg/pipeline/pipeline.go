// Package pipeline 端到端分析编排
// 证据进、最终记录出：规则评估、置信度计算、判定聚合、解释生成
// 批处理中单个 feature 出错只降级该条记录，不中断整批
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/cdsgo/cds/pkg/evidence"
	"github.com/cdsgo/cds/pkg/llm"
	"github.com/cdsgo/cds/pkg/rules"
	"github.com/cdsgo/cds/pkg/scoring"
	"github.com/cdsgo/cds/pkg/verdict"
)

// FinalRecord 一个 feature 的最终分析记录，报表的行单位
type FinalRecord struct {
	FeatureID          string    `json:"feature_id"`
	RequiresGeoLogic   bool      `json:"requires_geo_logic"`
	Reasoning          string    `json:"reasoning"`
	RelatedRegulations []string  `json:"related_regulations"`
	Confidence         float64   `json:"confidence"`
	MatchedRules       []string  `json:"matched_rules"`
	MissingControls    []string  `json:"missing_controls"`
	EvidenceRefs       []string  `json:"evidence_refs"`
	CodeRefs           []string  `json:"code_refs"`
	RuntimeObservation string    `json:"runtime_observation"`
	NeedsReview        bool      `json:"needs_review"`
	Severity           string    `json:"severity"`
	CreatedAt          time.Time `json:"created_at"`
}

// Pipeline 分析流水线
type Pipeline struct {
	Store     *rules.Store
	Explainer *llm.Explainer

	// Now 可注入的时钟，测试时固定时间保证输出可复现
	Now func() time.Time
}

// New 创建流水线
func New(store *rules.Store, explainer *llm.Explainer) *Pipeline {
	return &Pipeline{
		Store:     store,
		Explainer: explainer,
		Now:       time.Now,
	}
}

// Analyze 分析单个 feature 的证据，产出判定和最终记录
func (p *Pipeline) Analyze(ctx context.Context, ev *evidence.Evidence) (*verdict.FeatureVerdict, FinalRecord) {
	results := rules.EvaluateAll(p.Store, ev)
	scoring.Apply(p.Store, results, ev)
	fv := verdict.Aggregate(ev.FeatureID, results, p.Store, ev, p.Now().UTC())
	return fv, p.buildRecord(ctx, ev, fv)
}

// Run 批量分析，输出顺序与输入一致
// 单条证据分析失败会产出一条降级为人工复核的记录，绝不中断整批
func (p *Pipeline) Run(ctx context.Context, evidences []*evidence.Evidence) []FinalRecord {
	records := make([]FinalRecord, 0, len(evidences))
	for _, ev := range evidences {
		record := p.analyzeSafe(ctx, ev)
		records = append(records, record)
	}
	return records
}

func (p *Pipeline) analyzeSafe(ctx context.Context, ev *evidence.Evidence) (record FinalRecord) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("⚠️ feature %s 分析异常: %v", ev.FeatureID, r)
			record = FinalRecord{
				FeatureID:          ev.FeatureID,
				Reasoning:          fmt.Sprintf("分析异常（%v），需要人工复核", r),
				RelatedRegulations: []string{},
				MatchedRules:       []string{},
				MissingControls:    []string{},
				EvidenceRefs:       []string{},
				CodeRefs:           []string{},
				NeedsReview:        true,
				Severity:           "medium",
				CreatedAt:          p.Now().UTC(),
			}
		}
	}()
	_, record = p.Analyze(ctx, ev)
	return record
}

func (p *Pipeline) buildRecord(ctx context.Context, ev *evidence.Evidence, fv *verdict.FeatureVerdict) FinalRecord {
	record := FinalRecord{
		FeatureID:          ev.FeatureID,
		Confidence:         fv.ConfidenceScore,
		NeedsReview:        fv.OverallVerdict == rules.VerdictRequiresReview,
		Severity:           strings.ToLower(string(fv.RiskLevel)),
		CreatedAt:          fv.CreatedAt,
		RelatedRegulations: []string{},
		MatchedRules:       []string{},
		MissingControls:    []string{},
		EvidenceRefs:       []string{},
		CodeRefs:           collectCodeRefs(ev),
	}

	refSet := make(map[string]struct{})
	regSet := make(map[string]struct{})
	controlSet := make(map[string]struct{})
	for _, r := range fv.RuleResults {
		if r.Verdict == rules.VerdictNotApplicable {
			continue
		}
		record.MatchedRules = append(record.MatchedRules, r.RegulationID)
		for _, ref := range r.EvidenceRefs {
			refSet[ref] = struct{}{}
			if strings.HasPrefix(ref, "static.geo_branching") {
				record.RequiresGeoLogic = true
			}
		}
		rule, ok := p.Store.Get(r.RegulationID)
		if !ok {
			continue
		}
		for _, reg := range rule.Regulations {
			regSet[reg] = struct{}{}
		}
		if r.Verdict == rules.VerdictNonCompliant || r.Verdict == rules.VerdictRequiresReview {
			for _, c := range rule.RequiresControls {
				controlSet[c] = struct{}{}
			}
		}
	}
	record.EvidenceRefs = sortedKeys(refSet)
	record.RelatedRegulations = sortedKeys(regSet)
	record.MissingControls = sortedKeys(controlSet)

	if ev.Runtime != nil && ev.Runtime.Persona != nil {
		record.RuntimeObservation = fmt.Sprintf("画像 %s/%d 岁观察到 %d 个受限操作",
			ev.Runtime.Persona.Country, ev.Runtime.Persona.Age, len(ev.Runtime.BlockedActions))
	}

	if p.Explainer != nil {
		record.Reasoning = p.Explainer.Explain(ctx, ev, fv)
	} else {
		record.Reasoning = defaultReasoning(fv)
	}

	return record
}

// collectCodeRefs 从静态信号提取 file:line 引用，去重排序
func collectCodeRefs(ev *evidence.Evidence) []string {
	set := make(map[string]struct{})
	for _, g := range ev.Static.GeoBranching {
		set[fmt.Sprintf("%s:%d", g.File, g.Line)] = struct{}{}
	}
	for _, a := range ev.Static.AgeChecks {
		set[fmt.Sprintf("%s:%d", a.File, a.Line)] = struct{}{}
	}
	for _, d := range ev.Static.DataResidency {
		set[fmt.Sprintf("%s:%d", d.File, d.Line)] = struct{}{}
	}
	for _, r := range ev.Static.ReportingClients {
		set[fmt.Sprintf("%s:%d", r.File, r.Line)] = struct{}{}
	}
	return sortedKeys(set)
}

func defaultReasoning(fv *verdict.FeatureVerdict) string {
	return fmt.Sprintf("整体判定 %s，聚合置信度 %.2f，风险等级 %s", fv.OverallVerdict, fv.ConfidenceScore, fv.RiskLevel)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
