package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestLoad_Defaults 未设置环境变量时使用默认值
func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"CDS_RULES_PATH", "CDS_SNIPPETS_PATH", "CDS_LLM_API_KEY",
		"CDS_BAND_CLEAR", "CDS_BAND_STRONG", "CDS_BAND_GRAY",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "assets/default_rules.yaml", cfg.RulesPath)
	assert.Equal(t, "assets/policy_snippets.json", cfg.SnippetsPath)
	assert.Empty(t, cfg.LLMAPIKey)
	assert.Zero(t, cfg.BandClear)
}

// TestLoad_EnvOverrides 环境变量覆盖默认值
func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CDS_RULES_PATH", "/tmp/rules.yaml")
	t.Setenv("CDS_LLM_API_KEY", "sk-test")
	t.Setenv("CDS_BAND_CLEAR", "0.95")

	cfg := Load()
	assert.Equal(t, "/tmp/rules.yaml", cfg.RulesPath)
	assert.Equal(t, "sk-test", cfg.LLMAPIKey)
	assert.Equal(t, 0.95, cfg.BandClear)
}

// TestLoad_BadFloatIgnored 非法数值当作未设置
func TestLoad_BadFloatIgnored(t *testing.T) {
	t.Setenv("CDS_BAND_GRAY", "not-a-number")
	cfg := Load()
	assert.Zero(t, cfg.BandGray)
}
