package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/cdsgo/cds/pkg/config"
	"github.com/cdsgo/cds/pkg/evidence"
	"github.com/cdsgo/cds/pkg/llm"
	"github.com/cdsgo/cds/pkg/pipeline"
	"github.com/cdsgo/cds/pkg/probe"
	"github.com/cdsgo/cds/pkg/reporter"
	"github.com/cdsgo/cds/pkg/rules"
	"github.com/cdsgo/cds/pkg/scanner"
	"github.com/cdsgo/cds/pkg/scoring"
)

// Version 工具版本
const Version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg := config.Load()
	applyBandOverrides(cfg)

	var err error
	switch os.Args[1] {
	case "scan":
		err = runScan(os.Args[2:])
	case "probe":
		err = runProbe(os.Args[2:])
	case "evaluate":
		err = runEvaluate(cfg, os.Args[2:])
	case "explain":
		err = runExplain(cfg, os.Args[2:])
	case "pipeline":
		err = runPipeline(cfg, os.Args[2:])
	case "version":
		fmt.Printf("cds v%s\n", Version)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "未知子命令 %q\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "cds v%s - 地域合规检测工具\n\n", Version)
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  scan      扫描仓库源码，产出证据包 JSON")
	fmt.Fprintln(os.Stderr, "  probe     用指定画像做运行时探测，合并进已有证据包")
	fmt.Fprintln(os.Stderr, "  evaluate  对单个证据包做规则评估并打印结果")
	fmt.Fprintln(os.Stderr, "  explain   为单个证据包生成自然语言合规解释")
	fmt.Fprintln(os.Stderr, "  pipeline  对数据集批量执行 扫描→探测→评估→报告")
	fmt.Fprintln(os.Stderr, "  version   打印版本")
	fmt.Fprintln(os.Stderr, "\nExamples:")
	fmt.Fprintf(os.Stderr, "  %s scan -repo ./myapp -feature user_feed -output evidence.json\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s probe -evidence evidence.json -persona ut_minor\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s evaluate -evidence evidence.json\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s pipeline -dataset features.csv -csv out.csv -html report.html\n", os.Args[0])
}

// applyBandOverrides 配置里的分段阈值覆盖默认值
func applyBandOverrides(cfg *config.Config) {
	if cfg.BandClear > 0 {
		scoring.BandClearThreshold = cfg.BandClear
	}
	if cfg.BandStrong > 0 {
		scoring.BandStrongThreshold = cfg.BandStrong
	}
	if cfg.BandGray > 0 {
		scoring.BandGrayThreshold = cfg.BandGray
	}
}

func runScan(args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	repo := fs.String("repo", "", "待扫描的仓库目录")
	feature := fs.String("feature", "", "feature 标识")
	output := fs.String("output", "", "证据包输出路径（默认 <feature>.json）")
	fs.Parse(args)

	if *repo == "" || *feature == "" {
		return fmt.Errorf("scan 需要 -repo 和 -feature")
	}

	ev, err := scanner.New().Scan(*repo, *feature)
	if err != nil {
		return err
	}

	path := *output
	if path == "" {
		path = *feature + ".json"
	}
	if err := evidence.Save(ev, path); err != nil {
		return err
	}
	fmt.Printf("✅ 证据包已写入: %s\n", path)
	return nil
}

func runProbe(args []string) error {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	evidencePath := fs.String("evidence", "", "已有证据包路径")
	persona := fs.String("persona", "", fmt.Sprintf("画像名，可选: %v", probe.PersonaNames()))
	output := fs.String("output", "", "输出路径（默认覆盖输入文件）")
	fs.Parse(args)

	if *evidencePath == "" || *persona == "" {
		return fmt.Errorf("probe 需要 -evidence 和 -persona")
	}

	ev, err := evidence.Load(*evidencePath)
	if err != nil {
		return err
	}
	signals, err := probe.New().Probe(*persona)
	if err != nil {
		return err
	}
	enriched := probe.Enrich(ev, signals)

	path := *output
	if path == "" {
		path = *evidencePath
	}
	if err := evidence.Save(enriched, path); err != nil {
		return err
	}
	fmt.Printf("✅ 运行时信号已合并: %s\n", path)
	return nil
}

func runEvaluate(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("evaluate", flag.ExitOnError)
	evidencePath := fs.String("evidence", "", "证据包路径")
	rulesPath := fs.String("rules", cfg.RulesPath, "规则文件路径")
	asJSON := fs.Bool("json", false, "以 JSON 输出完整判定")
	fs.Parse(args)

	if *evidencePath == "" {
		return fmt.Errorf("evaluate 需要 -evidence")
	}

	store, err := rules.Load(*rulesPath)
	if err != nil {
		return err
	}
	ev, err := evidence.Load(*evidencePath)
	if err != nil {
		return err
	}

	snippets, err := llm.LoadSnippets(cfg.SnippetsPath)
	if err != nil {
		return err
	}
	explainer := llm.NewExplainer(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel, snippets)

	p := pipeline.New(store, explainer)
	fv, record := p.Analyze(context.Background(), ev)

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(fv)
	}

	reporter.PrintText([]pipeline.FinalRecord{record})
	return nil
}

func runExplain(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("explain", flag.ExitOnError)
	evidencePath := fs.String("evidence", "", "证据包路径")
	rulesPath := fs.String("rules", cfg.RulesPath, "规则文件路径")
	fs.Parse(args)

	if *evidencePath == "" {
		return fmt.Errorf("explain 需要 -evidence")
	}

	store, err := rules.Load(*rulesPath)
	if err != nil {
		return err
	}
	ev, err := evidence.Load(*evidencePath)
	if err != nil {
		return err
	}

	snippets, err := llm.LoadSnippets(cfg.SnippetsPath)
	if err != nil {
		return err
	}
	explainer := llm.NewExplainer(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel, snippets)

	p := pipeline.New(store, explainer)
	_, record := p.Analyze(context.Background(), ev)

	fmt.Printf("📋 %s（置信度 %.2f，风险等级 %s）\n\n%s\n", record.FeatureID, record.Confidence, record.Severity, record.Reasoning)
	return nil
}

func runPipeline(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("pipeline", flag.ExitOnError)
	dataset := fs.String("dataset", "", "数据集 CSV 路径（需要 feature_id 列）")
	rulesPath := fs.String("rules", cfg.RulesPath, "规则文件路径")
	csvOut := fs.String("csv", "results.csv", "CSV 输出路径")
	htmlOut := fs.String("html", "", "HTML 报告输出路径，为空则不生成")
	fs.Parse(args)

	if *dataset == "" {
		return fmt.Errorf("pipeline 需要 -dataset")
	}

	store, err := rules.Load(*rulesPath)
	if err != nil {
		return err
	}
	rows, err := pipeline.LoadDataset(*dataset)
	if err != nil {
		return err
	}

	snippets, err := llm.LoadSnippets(cfg.SnippetsPath)
	if err != nil {
		return err
	}
	explainer := llm.NewExplainer(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel, snippets)

	p := pipeline.New(store, explainer)
	records := p.RunDataset(context.Background(), rows)

	if err := reporter.WriteCSV(records, *csvOut); err != nil {
		return err
	}
	fmt.Printf("✅ CSV 结果已写入: %s\n", *csvOut)

	if *htmlOut != "" {
		if err := reporter.WriteHTML(records, *htmlOut); err != nil {
			return err
		}
		fmt.Printf("✅ HTML 报告已生成: %s\n", *htmlOut)
	}

	reporter.PrintText(records)
	return nil
}
