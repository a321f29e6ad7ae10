// Package probe 运行时行为探测
// 用预置的用户画像模拟访问，观察功能在不同地区/年龄下的行为差异，
// 产出的运行时信号会合并进静态扫描的证据包
package probe

import (
	"fmt"
	"log"
	"sort"
	"strconv"

	"github.com/cdsgo/cds/pkg/evidence"
)

// 预置画像，键为画像名
var personas = map[string]evidence.Persona{
	"ut_minor": {Country: "US", Age: 16, Region: "UT", Language: "en-US"},
	"fr_adult": {Country: "FR", Age: 25, Region: "EU", Language: "fr-FR"},
	"ca_teen":  {Country: "CA", Age: 17, Region: "NA", Language: "en-CA"},
	"uk_adult": {Country: "GB", Age: 30, Region: "EU", Language: "en-GB"},
}

// PersonaNames 返回全部可用画像名，按字典序
func PersonaNames() []string {
	names := make([]string, 0, len(personas))
	for name := range personas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPersona 按名字查找画像
func GetPersona(name string) (evidence.Persona, error) {
	p, ok := personas[name]
	if !ok {
		return evidence.Persona{}, fmt.Errorf("未知画像 %q，可选: %v", name, PersonaNames())
	}
	return p, nil
}

// Prober 运行时探测器
// 当前实现基于画像属性做确定性推演，不发起真实网络访问，
// 同一画像多次探测产出完全一致的信号
type Prober struct{}

// New 创建探测器
func New() *Prober {
	return &Prober{}
}

// Probe 用指定画像探测，返回运行时信号
func (p *Prober) Probe(personaName string) (*evidence.RuntimeSignals, error) {
	persona, err := GetPersona(personaName)
	if err != nil {
		return nil, err
	}

	log.Printf("🧪 使用画像 %s 探测（国家 %s, 年龄 %d）", personaName, persona.Country, persona.Age)

	signals := &evidence.RuntimeSignals{
		Persona:         &persona,
		BlockedActions:  []string{},
		UIStates:        []string{},
		FlagResolutions: map[string]string{},
	}

	if persona.Age < 18 {
		signals.BlockedActions = []string{
			"age_restricted_content_hidden",
			"adult_features_disabled",
			"parental_consent_required",
		}
		signals.UIStates = append(signals.UIStates, "age_verification_modal_visible")
	} else {
		signals.UIStates = append(signals.UIStates, "standard_ui")
	}
	signals.UIStates = append(signals.UIStates, "cookie_banner_visible", "privacy_settings_available")

	signals.FlagResolutions["compliance_mode"] = "true"
	signals.FlagResolutions["age_verification_enabled"] = strconv.FormatBool(persona.Age < 18)
	signals.FlagResolutions["gdpr_mode"] = strconv.FormatBool(persona.Country == "FR" || persona.Country == "GB")
	signals.FlagResolutions["utah_minor_restrictions"] = strconv.FormatBool(persona.Age < 18 && persona.Region == "UT")

	return signals, nil
}

// Enrich 把运行时信号合并进已有证据，返回新的 Evidence 实例
// 原证据不被修改
func Enrich(ev *evidence.Evidence, signals *evidence.RuntimeSignals) *evidence.Evidence {
	return evidence.New(ev.FeatureID, ev.Static, signals, ev.Metadata)
}
