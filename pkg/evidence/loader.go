package evidence

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
)

// pack 证据文件的 JSON 结构，和扫描器的输出保持一致
type pack struct {
	FeatureID string      `json:"feature_id"`
	Signals   packSignals `json:"signals"`
	Metadata  Metadata    `json:"metadata"`
}

type packSignals struct {
	Static  *StaticSignals  `json:"static,omitempty"`
	Runtime *RuntimeSignals `json:"runtime,omitempty"`
}

// Load 从 JSON 文件加载一份证据
// 缺失 static 块只告警不报错：quality score 降到 0，
// 且所有 static.* 路径在评估时按 missing 处理
func Load(path string) (*Evidence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read evidence file: %w", err)
	}
	return Parse(data)
}

// Parse 从 JSON 字节解析一份证据
func Parse(data []byte) (*Evidence, error) {
	var p pack
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse evidence: %w", err)
	}
	if p.FeatureID == "" {
		return nil, fmt.Errorf("evidence missing feature_id")
	}

	var static StaticSignals
	if p.Signals.Static != nil {
		static = *p.Signals.Static
	} else {
		log.Printf("⚠️ 证据 %s 缺少 static 信号块，所有静态路径按缺失处理", p.FeatureID)
	}

	ev := New(p.FeatureID, static, p.Signals.Runtime, p.Metadata)
	ev.staticMissing = p.Signals.Static == nil
	return ev, nil
}

// Save 把证据写为 JSON 文件，和 Load 的格式对称
func Save(e *Evidence, path string) error {
	p := pack{
		FeatureID: e.FeatureID,
		Signals: packSignals{
			Runtime: e.Runtime,
		},
		Metadata: e.Metadata,
	}
	if !e.staticMissing {
		p.Signals.Static = &e.Static
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode evidence: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write evidence file: %w", err)
	}
	return nil
}
