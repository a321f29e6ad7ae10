// Package config 进程配置
// 从 .env 文件和环境变量加载，环境变量优先
package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config 运行配置
type Config struct {
	RulesPath    string // 规则 YAML 路径
	SnippetsPath string // 法规条文 JSON 路径

	LLMAPIKey  string // 为空则解释走本地模板
	LLMBaseURL string
	LLMModel   string

	// 置信度分段阈值覆盖，<=0 表示用默认值
	BandClear  float64
	BandStrong float64
	BandGray   float64
}

// Load 加载配置
// .env 文件不存在不算错误，直接读环境变量
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("⚠️ 加载 .env 失败: %v", err)
	}

	return &Config{
		RulesPath:    getEnv("CDS_RULES_PATH", "assets/default_rules.yaml"),
		SnippetsPath: getEnv("CDS_SNIPPETS_PATH", "assets/policy_snippets.json"),
		LLMAPIKey:    os.Getenv("CDS_LLM_API_KEY"),
		LLMBaseURL:   os.Getenv("CDS_LLM_BASE_URL"),
		LLMModel:     os.Getenv("CDS_LLM_MODEL"),
		BandClear:    getEnvFloat("CDS_BAND_CLEAR"),
		BandStrong:   getEnvFloat("CDS_BAND_STRONG"),
		BandGray:     getEnvFloat("CDS_BAND_GRAY"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvFloat(key string) float64 {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("⚠️ 环境变量 %s=%q 不是合法数值，忽略", key, v)
		return 0
	}
	return f
}
