package evidence

import (
	"sort"
	"strings"
)

// accessor 从 Evidence 中取出某个路径的值
// present=false 表示该路径在这份证据中缺失（missing）
type accessor func(e *Evidence) (value any, present bool)

// pathTable 全部已知证据路径的封闭枚举
// 规则逻辑里的 var 引用只允许出现这里登记过的路径，
// 加载规则时未知路径会直接报错，而不是等到评估时静默失败
var pathTable = map[string]accessor{
	"feature_id": func(e *Evidence) (any, bool) {
		return e.FeatureID, true
	},
	"quality_score": func(e *Evidence) (any, bool) {
		return e.QualityScore(), true
	},

	"static.geo_branching.length": func(e *Evidence) (any, bool) {
		return float64(len(e.Static.GeoBranching)), true
	},
	"static.geo_branching.countries": func(e *Evidence) (any, bool) {
		if len(e.Static.GeoBranching) == 0 {
			return nil, false
		}
		return unionStrings(func(yield func(string)) {
			for _, g := range e.Static.GeoBranching {
				for _, c := range g.Countries {
					yield(c)
				}
			}
		}), true
	},

	"static.age_checks.length": func(e *Evidence) (any, bool) {
		return float64(len(e.Static.AgeChecks)), true
	},
	"static.age_checks.verification_types": func(e *Evidence) (any, bool) {
		if len(e.Static.AgeChecks) == 0 {
			return nil, false
		}
		return unionStrings(func(yield func(string)) {
			for _, a := range e.Static.AgeChecks {
				yield(a.VerificationType)
			}
		}), true
	},
	"static.age_checks.min_threshold": func(e *Evidence) (any, bool) {
		min := 0
		found := false
		for _, a := range e.Static.AgeChecks {
			if a.Threshold == nil {
				continue
			}
			if !found || *a.Threshold < min {
				min = *a.Threshold
				found = true
			}
		}
		if !found {
			return nil, false
		}
		return float64(min), true
	},

	"static.data_residency.length": func(e *Evidence) (any, bool) {
		return float64(len(e.Static.DataResidency)), true
	},
	"static.data_residency.regions": func(e *Evidence) (any, bool) {
		if len(e.Static.DataResidency) == 0 {
			return nil, false
		}
		return unionStrings(func(yield func(string)) {
			for _, d := range e.Static.DataResidency {
				for _, r := range d.Regions {
					yield(r)
				}
			}
		}), true
	},
	"static.data_residency.data_types": func(e *Evidence) (any, bool) {
		if len(e.Static.DataResidency) == 0 {
			return nil, false
		}
		return unionStrings(func(yield func(string)) {
			for _, d := range e.Static.DataResidency {
				for _, t := range d.DataTypes {
					yield(t)
				}
			}
		}), true
	},

	"static.reporting_clients.length": func(e *Evidence) (any, bool) {
		return float64(len(e.Static.ReportingClients)), true
	},
	"static.reporting_clients.names": func(e *Evidence) (any, bool) {
		if len(e.Static.ReportingClients) == 0 {
			return nil, false
		}
		return unionStrings(func(yield func(string)) {
			for _, r := range e.Static.ReportingClients {
				yield(r.Client)
			}
		}), true
	},

	"static.reco_system": func(e *Evidence) (any, bool) {
		return e.Static.RecoSystem, true
	},
	"static.pf_controls": func(e *Evidence) (any, bool) {
		return e.Static.PFControls, true
	},

	"static.flags.length": func(e *Evidence) (any, bool) {
		return float64(len(e.Static.Flags)), true
	},
	"static.flags.names": func(e *Evidence) (any, bool) {
		if len(e.Static.Flags) == 0 {
			return nil, false
		}
		return unionStrings(func(yield func(string)) {
			for _, f := range e.Static.Flags {
				yield(f.Name)
			}
		}), true
	},

	"runtime.present": func(e *Evidence) (any, bool) {
		return e.Runtime != nil, true
	},
	"runtime.persona.age": func(e *Evidence) (any, bool) {
		if e.Runtime == nil || e.Runtime.Persona == nil {
			return nil, false
		}
		return float64(e.Runtime.Persona.Age), true
	},
	"runtime.persona.country": func(e *Evidence) (any, bool) {
		if e.Runtime == nil || e.Runtime.Persona == nil {
			return nil, false
		}
		return e.Runtime.Persona.Country, true
	},
	"runtime.persona.region": func(e *Evidence) (any, bool) {
		if e.Runtime == nil || e.Runtime.Persona == nil || e.Runtime.Persona.Region == "" {
			return nil, false
		}
		return e.Runtime.Persona.Region, true
	},
	"runtime.blocked_actions": func(e *Evidence) (any, bool) {
		if e.Runtime == nil {
			return nil, false
		}
		return append([]string(nil), e.Runtime.BlockedActions...), true
	},
	"runtime.ui_states": func(e *Evidence) (any, bool) {
		if e.Runtime == nil {
			return nil, false
		}
		return append([]string(nil), e.Runtime.UIStates...), true
	},
}

// Lookup 按路径取值，未知路径或值缺失时 present=false
// static 块整个缺失时所有 static.* 路径一律 missing，
// 连 length/布尔这类总有零值的路径也不例外
func (e *Evidence) Lookup(path string) (value any, present bool) {
	fn, ok := pathTable[path]
	if !ok {
		return nil, false
	}
	if e.staticMissing && strings.HasPrefix(path, "static.") {
		return nil, false
	}
	return fn(e)
}

// IsKnownPath 判断路径是否在封闭枚举中
func IsKnownPath(path string) bool {
	_, ok := pathTable[path]
	return ok
}

// KnownPaths 返回全部已知路径，按字典序排列
func KnownPaths() []string {
	paths := make([]string, 0, len(pathTable))
	for p := range pathTable {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// unionStrings 去重后排序，保证输出稳定
func unionStrings(collect func(yield func(string))) []string {
	seen := make(map[string]struct{})
	var out []string
	collect(func(s string) {
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	})
	sort.Strings(out)
	return out
}
