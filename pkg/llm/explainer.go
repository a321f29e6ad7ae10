package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/cdsgo/cds/pkg/evidence"
	"github.com/cdsgo/cds/pkg/rules"
	"github.com/cdsgo/cds/pkg/verdict"
)

// Explainer 合规结论解释器
type Explainer struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration

	httpClient *http.Client
	snippets   *SnippetStore
}

// NewExplainer 创建解释器
// apiKey 为空时所有解释走本地模板，不发起网络请求
func NewExplainer(apiKey, baseURL, model string, snippets *SnippetStore) *Explainer {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Explainer{
		APIKey:      apiKey,
		BaseURL:     baseURL,
		Model:       model,
		Temperature: 0.2,
		Timeout:     60 * time.Second,
		httpClient:  &http.Client{},
		snippets:    snippets,
	}
}

// Explain 为一个 feature 的最终判定生成自然语言解释
// 远端不可用时退化为确定性模板，不返回错误
func (e *Explainer) Explain(ctx context.Context, ev *evidence.Evidence, fv *verdict.FeatureVerdict) string {
	if e.APIKey == "" {
		return e.templateExplanation(ev, fv)
	}

	text, err := e.remoteExplanation(ctx, ev, fv)
	if err != nil {
		log.Printf("⚠️ LLM 解释生成失败，回退到模板: %v", err)
		return e.templateExplanation(ev, fv)
	}
	return text
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (e *Explainer) remoteExplanation(ctx context.Context, ev *evidence.Evidence, fv *verdict.FeatureVerdict) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model: e.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a compliance analysis assistant. Explain compliance verdicts for social media features in plain language, citing the evidence and regulations provided."},
			{Role: "user", Content: e.buildPrompt(ev, fv)},
		},
		Temperature: e.Temperature,
		MaxTokens:   2048,
	})
	if err != nil {
		return "", fmt.Errorf("构造请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.APIKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("LLM 接口返回 %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("响应解析失败: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("LLM 接口报错: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("LLM 响应为空")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// buildPrompt 组装分析提示词，控制证据条数避免超长
func (e *Explainer) buildPrompt(ev *evidence.Evidence, fv *verdict.FeatureVerdict) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Feature: %s\nOverall verdict: %s (confidence %.2f, risk %s)\n\n", fv.FeatureID, fv.OverallVerdict, fv.ConfidenceScore, fv.RiskLevel)

	b.WriteString("Static evidence:\n")
	fmt.Fprintf(&b, "- Geo branching signals: %d\n", len(ev.Static.GeoBranching))
	for i, g := range ev.Static.GeoBranching {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&b, "  - %s:%d countries=%v\n", g.File, g.Line, g.Countries)
	}
	fmt.Fprintf(&b, "- Age check signals: %d\n", len(ev.Static.AgeChecks))
	fmt.Fprintf(&b, "- Data residency signals: %d\n", len(ev.Static.DataResidency))
	fmt.Fprintf(&b, "- Reporting clients: %d\n", len(ev.Static.ReportingClients))
	fmt.Fprintf(&b, "- Recommendation system: %v, parental controls: %v\n", ev.Static.RecoSystem, ev.Static.PFControls)
	if ev.Runtime != nil && ev.Runtime.Persona != nil {
		fmt.Fprintf(&b, "\nRuntime probe persona: %s age %d, blocked actions: %v\n", ev.Runtime.Persona.Country, ev.Runtime.Persona.Age, ev.Runtime.BlockedActions)
	}

	b.WriteString("\nRule results:\n")
	for _, r := range fv.RuleResults {
		fmt.Fprintf(&b, "- %s: %s (confidence %.2f) %s\n", r.RegulationID, r.Verdict, r.Confidence, r.Reasoning)
	}

	if e.snippets != nil {
		var ids []string
		for _, r := range fv.RuleResults {
			ids = append(ids, r.RegulationID)
		}
		relevant := e.snippets.Relevant(ids)
		if len(relevant) > 0 {
			b.WriteString("\nRelevant regulations:\n")
			for _, s := range relevant {
				fmt.Fprintf(&b, "- %s: %s\n", s.Title, s.Content)
			}
		}
	}

	b.WriteString("\nExplain in 2-3 paragraphs whether this feature needs geo-specific compliance logic and why.")
	return b.String()
}

// templateExplanation 确定性模板解释，离线兜底
func (e *Explainer) templateExplanation(ev *evidence.Evidence, fv *verdict.FeatureVerdict) string {
	var b strings.Builder

	switch fv.OverallVerdict {
	case rules.VerdictNonCompliant:
		fmt.Fprintf(&b, "功能 %s 存在合规风险（风险等级 %s，置信度 %.2f）。", fv.FeatureID, fv.RiskLevel, fv.ConfidenceScore)
	case rules.VerdictRequiresReview:
		fmt.Fprintf(&b, "功能 %s 需要人工复核（置信度 %.2f）。", fv.FeatureID, fv.ConfidenceScore)
	case rules.VerdictCompliant:
		fmt.Fprintf(&b, "功能 %s 在当前证据下符合适用法规（置信度 %.2f）。", fv.FeatureID, fv.ConfidenceScore)
	default:
		fmt.Fprintf(&b, "功能 %s 未命中任何适用法规。", fv.FeatureID)
	}

	var flagged []string
	for _, r := range fv.RuleResults {
		if r.Verdict == rules.VerdictNonCompliant || r.Verdict == rules.VerdictRequiresReview {
			flagged = append(flagged, fmt.Sprintf("%s（%s）", r.RegulationID, r.Verdict))
		}
	}
	if len(flagged) > 0 {
		fmt.Fprintf(&b, " 涉及规则: %s。", strings.Join(flagged, "、"))
	}

	fmt.Fprintf(&b, " 静态证据: %d 个地理分支信号、%d 个年龄校验信号", len(ev.Static.GeoBranching), len(ev.Static.AgeChecks))
	if ev.Runtime != nil {
		b.WriteString("，包含运行时探测结果")
	}
	b.WriteString("。")

	if e.snippets != nil && len(flagged) > 0 {
		var ids []string
		for _, r := range fv.RuleResults {
			ids = append(ids, r.RegulationID)
		}
		if relevant := e.snippets.Relevant(ids); len(relevant) > 0 {
			fmt.Fprintf(&b, " 相关法规: %s。", relevant[0].Title)
		}
	}

	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
