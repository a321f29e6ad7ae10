package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/cdsgo/cds/pkg/evidence"
	"github.com/cdsgo/cds/pkg/probe"
	"github.com/cdsgo/cds/pkg/scanner"
)

// DatasetRow 数据集一行：待分析的 feature 及其代码位置
type DatasetRow struct {
	FeatureID string
	RepoPath  string // 为空时跳过静态扫描，按空证据处理
	Persona   string // 为空时跳过运行时探测
}

// LoadDataset 读取数据集 CSV
// 必须包含 feature_id 列，repo_path 和 persona 列可选
func LoadDataset(path string) ([]DatasetRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开数据集失败: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("数据集 CSV 解析失败: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("数据集为空")
	}

	cols := make(map[string]int)
	for i, name := range records[0] {
		cols[name] = i
	}
	featureCol, ok := cols["feature_id"]
	if !ok {
		return nil, fmt.Errorf("数据集缺少 feature_id 列")
	}

	var rows []DatasetRow
	for _, rec := range records[1:] {
		row := DatasetRow{FeatureID: rec[featureCol]}
		if i, ok := cols["repo_path"]; ok && i < len(rec) {
			row.RepoPath = rec[i]
		}
		if i, ok := cols["persona"]; ok && i < len(rec) {
			row.Persona = rec[i]
		}
		if row.FeatureID == "" {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// RunDataset 对数据集逐行执行 扫描 → 探测 → 分析
// 同一 repo_path 只扫描一次，任何一行失败只产出降级记录，不中断后续行
func (p *Pipeline) RunDataset(ctx context.Context, rows []DatasetRow) []FinalRecord {
	sc := scanner.New()
	prober := probe.New()
	scanCache := make(map[string]*evidence.Evidence)

	records := make([]FinalRecord, 0, len(rows))
	for _, row := range rows {
		ev, err := buildEvidence(sc, prober, scanCache, row)
		if err != nil {
			log.Printf("⚠️ feature %s 证据采集失败: %v", row.FeatureID, err)
			records = append(records, FinalRecord{
				FeatureID:          row.FeatureID,
				Reasoning:          fmt.Sprintf("证据采集失败（%v），需要人工复核", err),
				RelatedRegulations: []string{},
				MatchedRules:       []string{},
				MissingControls:    []string{},
				EvidenceRefs:       []string{},
				CodeRefs:           []string{},
				NeedsReview:        true,
				Severity:           "critical",
				CreatedAt:          p.Now().UTC(),
			})
			continue
		}
		records = append(records, p.analyzeSafe(ctx, ev))
	}
	return records
}

func buildEvidence(sc *scanner.Scanner, prober *probe.Prober, cache map[string]*evidence.Evidence, row DatasetRow) (*evidence.Evidence, error) {
	var ev *evidence.Evidence
	if row.RepoPath != "" {
		cached, ok := cache[row.RepoPath]
		if !ok {
			scanned, err := sc.Scan(row.RepoPath, row.FeatureID)
			if err != nil {
				return nil, err
			}
			cache[row.RepoPath] = scanned
			cached = scanned
		}
		// 复用扫描结果，但每个 feature 拿到自己的 Evidence 实例和 run_id
		meta := cached.Metadata
		meta.RunID = uuid.NewString()
		ev = evidence.New(row.FeatureID, cached.Static, nil, meta)
	} else {
		ev = evidence.New(row.FeatureID, evidence.StaticSignals{}, nil, evidence.Metadata{})
	}

	if row.Persona != "" {
		signals, err := prober.Probe(row.Persona)
		if err != nil {
			return nil, err
		}
		ev = probe.Enrich(ev, signals)
	}
	return ev, nil
}
