package evidence

import (
	"sort"
	"time"
)

// VerificationType 年龄校验信号的类型
const (
	VerificationCollection  = "collection"  // 仅收集出生日期/年龄
	VerificationValidation  = "validation"  // 校验年龄真实性
	VerificationEnforcement = "enforcement" // 根据年龄实际限制行为
)

// GeoSignal 地理分支信号：代码中按国家/地区走不同路径的位置
type GeoSignal struct {
	File      string   `json:"file"`
	Line      int      `json:"line"`
	Countries []string `json:"countries"` // ISO 3166-1 alpha-2
	Condition string   `json:"condition,omitempty"`
}

// AgeCheckSignal 年龄校验信号
type AgeCheckSignal struct {
	File             string `json:"file"`
	Line             int    `json:"line"`
	Lib              string `json:"lib"`
	Method           string `json:"method,omitempty"`
	Threshold        *int   `json:"threshold,omitempty"`
	VerificationType string `json:"verification_type"` // collection|validation|enforcement
}

// DataResidencySignal 数据驻留信号
type DataResidencySignal struct {
	File      string   `json:"file"`
	Line      int      `json:"line"`
	Regions   []string `json:"regions"`
	DataTypes []string `json:"data_types,omitempty"`
	Mechanism string   `json:"mechanism,omitempty"`
}

// ReportingClientSignal 强制上报集成信号（如 NCMEC）
type ReportingClientSignal struct {
	Client            string   `json:"client"`
	File              string   `json:"file"`
	Line              int      `json:"line"`
	TriggerConditions []string `json:"trigger_conditions,omitempty"`
}

// FlagSignal 特性开关信号
type FlagSignal struct {
	Name    string `json:"name"`
	Default string `json:"default,omitempty"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// StaticSignals 静态扫描产出的全部信号
type StaticSignals struct {
	GeoBranching     []GeoSignal             `json:"geo_branching"`
	AgeChecks        []AgeCheckSignal        `json:"age_checks"`
	DataResidency    []DataResidencySignal   `json:"data_residency"`
	ReportingClients []ReportingClientSignal `json:"reporting_clients"`
	RecoSystem       bool                    `json:"reco_system"`
	PFControls       bool                    `json:"pf_controls"`
	Flags            []FlagSignal            `json:"flags"`
}

// Persona 运行时探测使用的模拟用户画像
type Persona struct {
	Country  string `json:"country"` // ISO 3166-1 alpha-2
	Age      int    `json:"age"`
	Region   string `json:"region,omitempty"`
	Language string `json:"language,omitempty"`
}

// RuntimeSignals 运行时探测产出的信号，探测被跳过时整体为 nil
type RuntimeSignals struct {
	Persona         *Persona          `json:"persona,omitempty"`
	BlockedActions  []string          `json:"blocked_actions"`
	UIStates        []string          `json:"ui_states"`
	FlagResolutions map[string]string `json:"flag_resolutions,omitempty"`
}

// Metadata 证据采集元信息
type Metadata struct {
	RunID          string    `json:"run_id"`
	Repo           string    `json:"repo,omitempty"`
	Commit         string    `json:"commit,omitempty"`
	ScanTime       time.Time `json:"scan_timestamp"`
	ScannerVersion string    `json:"scanner_version,omitempty"`
}

// Evidence 一个 feature 在一次分析中的全部合规证据
// 构造完成后视为不可变：规则评估只读，重跑分析会生成新的 Evidence 实例
type Evidence struct {
	FeatureID string          `json:"feature_id"`
	Static    StaticSignals   `json:"-"`
	Runtime   *RuntimeSignals `json:"-"`
	Metadata  Metadata        `json:"metadata"`

	// staticMissing 为 true 表示证据文件整个 static 块缺失
	// 此时所有 static.* 路径按 missing 处理，而不是零值：
	// 没采集到证据不等于检查过且为空
	staticMissing bool

	quality float64
}

// HasStatic 静态信号块是否存在（存在但为空也算存在）
func (e *Evidence) HasStatic() bool {
	return !e.staticMissing
}

// New 构造 Evidence 并计算一次 quality score
func New(featureID string, static StaticSignals, runtime *RuntimeSignals, meta Metadata) *Evidence {
	e := &Evidence{
		FeatureID: featureID,
		Static:    static,
		Runtime:   runtime,
		Metadata:  meta,
	}
	e.quality = computeQuality(e)
	return e
}

// QualityScore 返回证据完整度得分，范围 [0,1]
func (e *Evidence) QualityScore() float64 {
	return e.quality
}

// Countries 返回证据中出现过的全部国家代码（geo_branching 的并集 + 运行时 persona）
func (e *Evidence) Countries() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(c string) {
		if c == "" {
			return
		}
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	for _, g := range e.Static.GeoBranching {
		for _, c := range g.Countries {
			add(c)
		}
	}
	if e.Runtime != nil && e.Runtime.Persona != nil {
		add(e.Runtime.Persona.Country)
	}
	sort.Strings(out)
	return out
}

// computeQuality 统计 5 类静态信号中非空的数量除以 5，
// 有运行时信号时加 0.1，上限 1.0
func computeQuality(e *Evidence) float64 {
	filled := 0
	if len(e.Static.GeoBranching) > 0 {
		filled++
	}
	if len(e.Static.AgeChecks) > 0 {
		filled++
	}
	if len(e.Static.DataResidency) > 0 {
		filled++
	}
	if len(e.Static.ReportingClients) > 0 {
		filled++
	}
	if len(e.Static.Flags) > 0 {
		filled++
	}

	score := float64(filled) / 5.0
	if e.Runtime != nil {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
