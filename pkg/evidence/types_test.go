package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestQualityScore_EmptyEvidence 空证据 quality score 为 0
func TestQualityScore_EmptyEvidence(t *testing.T) {
	e := New("empty", StaticSignals{}, nil, Metadata{})
	assert.Equal(t, 0.0, e.QualityScore())
}

// TestQualityScore_TwoCategoriesWithRuntime 两类静态信号加运行时 = 0.5
func TestQualityScore_TwoCategoriesWithRuntime(t *testing.T) {
	static := StaticSignals{
		GeoBranching: []GeoSignal{{File: "a.py", Line: 1, Countries: []string{"US"}}},
		AgeChecks:    []AgeCheckSignal{{File: "a.py", Line: 2, VerificationType: VerificationEnforcement}},
	}
	e := New("feed", static, &RuntimeSignals{}, Metadata{})
	assert.InDelta(t, 0.5, e.QualityScore(), 1e-9)
}

// TestQualityScore_CappedAtOne 五类信号加运行时封顶 1.0
func TestQualityScore_CappedAtOne(t *testing.T) {
	static := StaticSignals{
		GeoBranching:     []GeoSignal{{}},
		AgeChecks:        []AgeCheckSignal{{}},
		DataResidency:    []DataResidencySignal{{}},
		ReportingClients: []ReportingClientSignal{{}},
		Flags:            []FlagSignal{{Name: "X"}},
	}
	e := New("full", static, &RuntimeSignals{}, Metadata{})
	assert.Equal(t, 1.0, e.QualityScore())
}

// TestQualityScore_BoolCategoriesDontCount reco/pf 布尔信号不计入类别数
func TestQualityScore_BoolCategoriesDontCount(t *testing.T) {
	e := New("bools", StaticSignals{RecoSystem: true, PFControls: true}, nil, Metadata{})
	assert.Equal(t, 0.0, e.QualityScore())
}

// TestCountries_UnionWithPersona 国家集合并静态信号和画像
func TestCountries_UnionWithPersona(t *testing.T) {
	static := StaticSignals{
		GeoBranching: []GeoSignal{
			{Countries: []string{"US", "CA"}},
			{Countries: []string{"FR", "US"}},
		},
	}
	runtime := &RuntimeSignals{Persona: &Persona{Country: "GB", Age: 30}}
	e := New("geo", static, runtime, Metadata{})

	assert.Equal(t, []string{"CA", "FR", "GB", "US"}, e.Countries())
}

// TestCountries_Empty 没有地域证据时返回空集
func TestCountries_Empty(t *testing.T) {
	e := New("none", StaticSignals{}, nil, Metadata{})
	assert.Empty(t, e.Countries())
}
