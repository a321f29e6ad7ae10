package reporter

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/montanaflynn/stats"

	"github.com/cdsgo/cds/pkg/pipeline"
)

// HTMLReportData HTML 报告数据
type HTMLReportData struct {
	Title         string
	Generated     string
	TotalFeatures int
	GeoCount      int
	ReviewCount   int
	HighSeverity  int
	AvgConfidence float64
	Severities    []SeverityCount
	Records       []HTMLRecord
}

// SeverityCount 风险等级分布
type SeverityCount struct {
	Severity string
	Count    int
}

// HTMLRecord HTML 报告中的单条记录
type HTMLRecord struct {
	FeatureID          string
	RequiresGeoLogic   bool
	ReasoningHTML      template.HTML
	RelatedRegulations []string
	Confidence         float64
	MatchedRules       []string
	MissingControls    []string
	EvidenceRefs       []string
	CodeRefs           []string
	RuntimeObservation string
	NeedsReview        bool
	Severity           string
	Icon               string
}

// WriteHTML 生成 HTML 报告
func WriteHTML(records []pipeline.FinalRecord, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}

	data := buildHTMLData(records)

	tmpl, err := template.New("report").Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("模板解析失败: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建报告文件失败: %w", err)
	}
	defer f.Close()

	return tmpl.Execute(f, data)
}

func buildHTMLData(records []pipeline.FinalRecord) HTMLReportData {
	data := HTMLReportData{
		Title:         "合规检测分析报告",
		Generated:     time.Now().UTC().Format("2006-01-02 15:04:05 UTC"),
		TotalFeatures: len(records),
	}

	var confidences []float64
	severityCounts := make(map[string]int)
	for _, r := range records {
		if r.RequiresGeoLogic {
			data.GeoCount++
		}
		if r.NeedsReview {
			data.ReviewCount++
		}
		if r.Severity == "high" || r.Severity == "critical" {
			data.HighSeverity++
		}
		confidences = append(confidences, r.Confidence)
		severityCounts[r.Severity]++

		data.Records = append(data.Records, HTMLRecord{
			FeatureID:          r.FeatureID,
			RequiresGeoLogic:   r.RequiresGeoLogic,
			ReasoningHTML:      renderMarkdown(r.Reasoning),
			RelatedRegulations: r.RelatedRegulations,
			Confidence:         r.Confidence,
			MatchedRules:       r.MatchedRules,
			MissingControls:    r.MissingControls,
			EvidenceRefs:       r.EvidenceRefs,
			CodeRefs:           r.CodeRefs,
			RuntimeObservation: r.RuntimeObservation,
			NeedsReview:        r.NeedsReview,
			Severity:           r.Severity,
			Icon:               severityIcon(r.Severity),
		})
	}

	if len(confidences) > 0 {
		if mean, err := stats.Mean(confidences); err == nil {
			data.AvgConfidence = mean
		}
	}
	for _, sev := range []string{"critical", "high", "medium", "low"} {
		if n := severityCounts[sev]; n > 0 {
			data.Severities = append(data.Severities, SeverityCount{Severity: sev, Count: n})
		}
	}
	return data
}

// renderMarkdown 把结论文本按 Markdown 渲染成 HTML 片段
// LLM 生成的解释常带列表和强调标记，纯文本结论渲染后原样输出
func renderMarkdown(text string) template.HTML {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	return template.HTML(markdown.ToHTML([]byte(text), p, renderer))
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="zh-CN">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, "Segoe UI", Arial, sans-serif; margin: 0; padding: 20px; background: #f5f5f5; }
.container { max-width: 1200px; margin: 0 auto; background: #fff; padding: 24px; border-radius: 8px; box-shadow: 0 2px 10px rgba(0,0,0,.1); }
.header { border-bottom: 2px solid #007acc; padding-bottom: 16px; margin-bottom: 20px; }
.header h1 { margin: 0 0 4px; }
.meta { color: #666; font-size: 13px; }
.summary { display: grid; grid-template-columns: repeat(auto-fit, minmax(180px, 1fr)); gap: 16px; margin-bottom: 24px; }
.stat { background: #f8f9fa; border-radius: 6px; padding: 14px; text-align: center; }
.stat .num { font-size: 26px; font-weight: bold; color: #007acc; }
.stat .label { color: #666; font-size: 13px; }
.record { border: 1px solid #e0e0e0; border-radius: 6px; padding: 16px; margin-bottom: 14px; }
.record h3 { margin: 0 0 8px; }
.badge { display: inline-block; padding: 2px 8px; border-radius: 10px; font-size: 12px; margin-left: 6px; }
.badge.critical { background: #fde2e1; color: #b3261e; }
.badge.high { background: #fdebd3; color: #9a6200; }
.badge.medium { background: #fff8d6; color: #7a6a00; }
.badge.low { background: #e2f3e5; color: #1e6b2e; }
.badge.review { background: #e3ecfd; color: #1a53b3; }
.fields { font-size: 13px; color: #444; }
.fields dt { font-weight: bold; margin-top: 6px; }
.fields dd { margin: 0; }
.reasoning { background: #fafafa; border-left: 3px solid #007acc; padding: 8px 12px; margin-top: 10px; font-size: 14px; }
</style>
</head>
<body>
<div class="container">
  <div class="header">
    <h1>{{.Title}}</h1>
    <div class="meta">生成时间: {{.Generated}}</div>
  </div>
  <div class="summary">
    <div class="stat"><div class="num">{{.TotalFeatures}}</div><div class="label">分析 feature 数</div></div>
    <div class="stat"><div class="num">{{.GeoCount}}</div><div class="label">需要地域合规逻辑</div></div>
    <div class="stat"><div class="num">{{.ReviewCount}}</div><div class="label">需要人工复核</div></div>
    <div class="stat"><div class="num">{{.HighSeverity}}</div><div class="label">高风险及以上</div></div>
    <div class="stat"><div class="num">{{printf "%.2f" .AvgConfidence}}</div><div class="label">平均置信度</div></div>
  </div>
  {{range .Records}}
  <div class="record">
    <h3>{{.Icon}} {{.FeatureID}}
      <span class="badge {{.Severity}}">{{.Severity}}</span>
      {{if .NeedsReview}}<span class="badge review">需人工复核</span>{{end}}
    </h3>
    <dl class="fields">
      <dt>需要地域合规逻辑</dt><dd>{{if .RequiresGeoLogic}}是{{else}}否{{end}}（置信度 {{printf "%.2f" .Confidence}}）</dd>
      {{if .MatchedRules}}<dt>命中规则</dt><dd>{{range $i, $r := .MatchedRules}}{{if $i}}, {{end}}{{$r}}{{end}}</dd>{{end}}
      {{if .RelatedRegulations}}<dt>相关法规</dt><dd>{{range $i, $r := .RelatedRegulations}}{{if $i}}, {{end}}{{$r}}{{end}}</dd>{{end}}
      {{if .MissingControls}}<dt>缺失控制项</dt><dd>{{range $i, $c := .MissingControls}}{{if $i}}, {{end}}{{$c}}{{end}}</dd>{{end}}
      {{if .CodeRefs}}<dt>代码位置</dt><dd>{{range $i, $c := .CodeRefs}}{{if $i}}, {{end}}{{$c}}{{end}}</dd>{{end}}
      {{if .RuntimeObservation}}<dt>运行时观察</dt><dd>{{.RuntimeObservation}}</dd>{{end}}
    </dl>
    <div class="reasoning">{{.ReasoningHTML}}</div>
  </div>
  {{end}}
</div>
</body>
</html>
`
