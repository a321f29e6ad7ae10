// Package reporter 分析结果的多格式输出：终端文本、CSV、HTML
package reporter

import (
	"fmt"
	"strings"

	"github.com/cdsgo/cds/pkg/pipeline"
)

// severityIcon 风险等级对应的展示图标
func severityIcon(severity string) string {
	switch severity {
	case "critical":
		return "🔴"
	case "high":
		return "🟠"
	case "medium":
		return "🟡"
	default:
		return "🟢"
	}
}

// PrintText 在终端打印文本报告
func PrintText(records []pipeline.FinalRecord) {
	if len(records) == 0 {
		fmt.Println("📭 没有可展示的分析结果")
		return
	}

	fmt.Println("\n" + "═══════════════════════════════════════════════════════════")
	fmt.Println("                    合规检测分析报告")
	fmt.Println("═══════════════════════════════════════════════════════════")

	geoCount := 0
	reviewCount := 0
	for _, r := range records {
		if r.RequiresGeoLogic {
			geoCount++
		}
		if r.NeedsReview {
			reviewCount++
		}
	}
	fmt.Printf("\n📊 共分析 %d 个 feature，%d 个需要地域合规逻辑，%d 个需要人工复核\n",
		len(records), geoCount, reviewCount)

	for i, r := range records {
		fmt.Printf("\n%d. %s %s\n", i+1, severityIcon(r.Severity), r.FeatureID)
		fmt.Println("───────────────────────────────────────────────────────────")
		fmt.Printf("   ├─ 需要地域合规逻辑: %s\n", yesNo(r.RequiresGeoLogic))
		fmt.Printf("   ├─ 置信度: %.2f\n", r.Confidence)
		fmt.Printf("   ├─ 风险等级: %s\n", r.Severity)
		if len(r.MatchedRules) > 0 {
			fmt.Printf("   ├─ 命中规则: %s\n", strings.Join(r.MatchedRules, ", "))
		}
		if len(r.MissingControls) > 0 {
			fmt.Printf("   ├─ 缺失控制项: %s\n", strings.Join(r.MissingControls, ", "))
		}
		if r.RuntimeObservation != "" {
			fmt.Printf("   ├─ 运行时观察: %s\n", r.RuntimeObservation)
		}
		if r.NeedsReview {
			fmt.Println("   ├─ ⚠️ 需要人工复核")
		}
		fmt.Printf("   └─ 结论: %s\n", firstLine(r.Reasoning))
	}

	fmt.Println("\n═══════════════════════════════════════════════════════════")
}

func yesNo(v bool) string {
	if v {
		return "是"
	}
	return "否"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
