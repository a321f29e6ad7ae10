package reporter

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cdsgo/cds/pkg/pipeline"
)

// csvColumns CSV 输出的固定列，顺序是下游工具约定的一部分
var csvColumns = []string{
	"feature_id", "requires_geo_logic", "reasoning", "related_regulations",
	"confidence", "matched_rules", "missing_controls", "evidence_refs",
	"code_refs", "runtime_observation", "needs_review", "severity", "created_at",
}

// WriteCSV 把最终记录导出为 CSV 文件
func WriteCSV(records []pipeline.FinalRecord, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建 CSV 文件失败: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvColumns); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.FeatureID,
			strconv.FormatBool(r.RequiresGeoLogic),
			r.Reasoning,
			strings.Join(r.RelatedRegulations, "; "),
			strconv.FormatFloat(r.Confidence, 'f', 2, 64),
			strings.Join(r.MatchedRules, "; "),
			strings.Join(r.MissingControls, "; "),
			strings.Join(r.EvidenceRefs, "; "),
			strings.Join(r.CodeRefs, "; "),
			r.RuntimeObservation,
			strconv.FormatBool(r.NeedsReview),
			r.Severity,
			r.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
