package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdsgo/cds/pkg/evidence"
)

// TestPersonaNames 画像名按字典序返回
func TestPersonaNames(t *testing.T) {
	assert.Equal(t, []string{"ca_teen", "fr_adult", "uk_adult", "ut_minor"}, PersonaNames())
}

// TestGetPersona 已知画像能查到，未知画像报错并列出可选项
func TestGetPersona(t *testing.T) {
	p, err := GetPersona("ut_minor")
	require.NoError(t, err)
	assert.Equal(t, "US", p.Country)
	assert.Equal(t, 16, p.Age)
	assert.Equal(t, "UT", p.Region)

	_, err = GetPersona("mars_visitor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ut_minor")
}

// TestProbe_MinorBlockedActions 未成年画像观察到受限操作和年龄弹窗
func TestProbe_MinorBlockedActions(t *testing.T) {
	signals, err := New().Probe("ut_minor")
	require.NoError(t, err)

	assert.Len(t, signals.BlockedActions, 3)
	assert.Contains(t, signals.UIStates, "age_verification_modal_visible")
	assert.Equal(t, "true", signals.FlagResolutions["age_verification_enabled"])
	assert.Equal(t, "true", signals.FlagResolutions["utah_minor_restrictions"])
}

// TestProbe_AdultUnrestricted 成年画像没有受限操作
func TestProbe_AdultUnrestricted(t *testing.T) {
	signals, err := New().Probe("fr_adult")
	require.NoError(t, err)

	assert.Empty(t, signals.BlockedActions)
	assert.Contains(t, signals.UIStates, "standard_ui")
	assert.Equal(t, "false", signals.FlagResolutions["age_verification_enabled"])
	assert.Equal(t, "true", signals.FlagResolutions["gdpr_mode"])
	assert.Equal(t, "false", signals.FlagResolutions["utah_minor_restrictions"])
}

// TestProbe_Deterministic 同一画像重复探测结果一致
func TestProbe_Deterministic(t *testing.T) {
	p := New()
	first, err := p.Probe("ca_teen")
	require.NoError(t, err)
	second, err := p.Probe("ca_teen")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// TestProbe_UnknownPersona 未知画像直接报错
func TestProbe_UnknownPersona(t *testing.T) {
	_, err := New().Probe("nobody")
	assert.Error(t, err)
}

// TestEnrich 合并运行时信号生成新证据，原证据不变
func TestEnrich(t *testing.T) {
	base := evidence.New("feat", evidence.StaticSignals{}, nil, evidence.Metadata{RunID: "r1"})
	signals, err := New().Probe("ut_minor")
	require.NoError(t, err)

	enriched := Enrich(base, signals)
	require.NotNil(t, enriched.Runtime)
	assert.Equal(t, "feat", enriched.FeatureID)
	assert.Equal(t, "r1", enriched.Metadata.RunID)
	assert.Nil(t, base.Runtime, "原证据不应被修改")
}
