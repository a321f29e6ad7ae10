// Package llm 合规结论的自然语言解释
// 优先调用外部大模型生成解释；未配置 API key 或调用失败时
// 退化为确定性模板，保证离线环境下流水线可用
package llm

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// PolicySnippet 法规条文摘录，作为生成解释时的上下文
type PolicySnippet struct {
	RegulationID string `json:"regulation_id"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	SourceURL    string `json:"source_url,omitempty"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
}

// snippetsFile 条文文件结构
type snippetsFile struct {
	Version  string          `json:"version"`
	Snippets []PolicySnippet `json:"snippets"`
}

// SnippetStore 法规条文库
type SnippetStore struct {
	byID  map[string]PolicySnippet
	order []string
}

// LoadSnippets 从 JSON 文件加载条文库
// 文件不存在时回退到内置条文
func LoadSnippets(path string) (*SnippetStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultSnippetStore(), nil
		}
		return nil, fmt.Errorf("读取条文文件失败: %w", err)
	}

	var file snippetsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("条文 JSON 解析失败: %w", err)
	}
	if len(file.Snippets) == 0 {
		return defaultSnippetStore(), nil
	}

	store := &SnippetStore{byID: make(map[string]PolicySnippet)}
	for _, s := range file.Snippets {
		store.add(s)
	}
	return store, nil
}

func (s *SnippetStore) add(snippet PolicySnippet) {
	if _, ok := s.byID[snippet.RegulationID]; !ok {
		s.order = append(s.order, snippet.RegulationID)
	}
	s.byID[snippet.RegulationID] = snippet
}

// Get 按 regulation_id 精确查找
func (s *SnippetStore) Get(id string) (PolicySnippet, bool) {
	snippet, ok := s.byID[id]
	return snippet, ok
}

// All 按加载顺序返回全部条文
func (s *SnippetStore) All() []PolicySnippet {
	out := make([]PolicySnippet, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Relevant 查找给定法规列表相关的条文
// 先精确匹配 regulation_id，找不到再按标题关键词模糊匹配
func (s *SnippetStore) Relevant(regulations []string) []PolicySnippet {
	var out []PolicySnippet
	seen := make(map[string]struct{})
	for _, reg := range regulations {
		key := strings.ToLower(reg)
		if snippet, ok := s.byID[key]; ok {
			if _, dup := seen[snippet.RegulationID]; !dup {
				seen[snippet.RegulationID] = struct{}{}
				out = append(out, snippet)
			}
			continue
		}
		for _, id := range s.order {
			snippet := s.byID[id]
			if titleMatches(snippet.Title, key) {
				if _, dup := seen[id]; !dup {
					seen[id] = struct{}{}
					out = append(out, snippet)
				}
				break
			}
		}
	}
	return out
}

func titleMatches(title, regulation string) bool {
	lowerTitle := strings.ToLower(title)
	for _, word := range strings.FieldsFunc(regulation, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	}) {
		if strings.Contains(lowerTitle, word) {
			return true
		}
	}
	return false
}

func defaultSnippetStore() *SnippetStore {
	store := &SnippetStore{byID: make(map[string]PolicySnippet)}
	for _, s := range defaultSnippets {
		store.add(s)
	}
	return store
}

// 内置条文，条文文件缺失时兜底
var defaultSnippets = []PolicySnippet{
	{
		RegulationID: "utah_social_media_act",
		Title:        "Utah Social Media Regulation Act - Minor Protections",
		Content:      "Social media companies must implement curfew restrictions for users under 18 in Utah, blocking access between 10:30 PM and 6:30 AM unless parental consent is provided.",
		SourceURL:    "https://le.utah.gov/~2023/bills/static/SB0152.html",
		Jurisdiction: "Utah, USA",
	},
	{
		RegulationID: "ncmec_reporting",
		Title:        "NCMEC Mandatory Reporting Requirements",
		Content:      "Electronic service providers must report known instances of child sexual abuse material (CSAM) to the National Center for Missing & Exploited Children within a reasonable time.",
		SourceURL:    "https://www.missingkids.org/gethelpnow/cybertipline",
		Jurisdiction: "United States",
	},
	{
		RegulationID: "eu_dsa",
		Title:        "EU Digital Services Act - Transparency Obligations",
		Content:      "Very large online platforms must provide transparency reports, implement user flagging mechanisms, and establish appeal processes for content moderation decisions.",
		SourceURL:    "https://digital-strategy.ec.europa.eu/en/policies/digital-services-act-package",
		Jurisdiction: "European Union",
	},
	{
		RegulationID: "gdpr",
		Title:        "GDPR - Lawful Basis for Processing",
		Content:      "Processing personal data requires a lawful basis under Article 6. Data subjects have rights to access, portability, erasure, and objection to processing.",
		SourceURL:    "https://gdpr.eu/article-6-how-to-process-personal-data-legally/",
		Jurisdiction: "European Union",
	},
	{
		RegulationID: "coppa",
		Title:        "COPPA - Children's Online Privacy Protection",
		Content:      "Websites directed to children under 13 must obtain verifiable parental consent before collecting personal information from children.",
		SourceURL:    "https://www.ftc.gov/enforcement/rules/rulemaking-regulatory-reform-proceedings/childrens-online-privacy-protection-rule",
		Jurisdiction: "United States",
	},
}
