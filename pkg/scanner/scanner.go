// Package scanner 对仓库源码做静态合规信号扫描
// 用一组正则启发式提取地理分支、年龄校验、数据驻留等信号，
// 产出标准化的证据包供规则引擎消费
package scanner

import (
	"bufio"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cdsgo/cds/pkg/evidence"
)

// Version 扫描器版本，写进证据 metadata 便于追溯
const Version = "0.3.0"

// 各类信号的匹配模式
var (
	countryCodeRe = regexp.MustCompile(`["']([A-Z]{2})["']`)
	geoKeywordRe  = regexp.MustCompile(`(?i)country|region|geo|jurisdiction|locale`)
	ageCheckRe    = regexp.MustCompile(`(?i)age_gate|age_verify|verify_age|check_age|minimum_age|user\.age|user_age`)
	ageThreshRe   = regexp.MustCompile(`(?i)age\s*[<>=]=?\s*(\d{1,2})`)
	residencyRe   = regexp.MustCompile(`(?i)us-east|eu-west|asia-pacific|data_residency|residency`)
	regionNameRe  = regexp.MustCompile(`(?i)(us-east|eu-west|asia-pacific)`)
	reportingRe   = regexp.MustCompile(`(?i)ncmec|csam_report|safety_report(ing)?_client`)
	recoRe        = regexp.MustCompile(`(?i)recommendation_engine|personalization|reco_system|for_you_feed`)
	pfControlRe   = regexp.MustCompile(`(?i)parental_control|family_pairing|guardian_consent`)
	flagRe        = regexp.MustCompile(`FEATURE_FLAG_(\w+)`)
)

// 只扫这些扩展名，其余文件直接跳过
var sourceExts = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".tsx": true,
	".java": true, ".kt": true, ".rb": true, ".yaml": true, ".yml": true,
}

var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, "dist": true,
}

// Scanner 静态信号扫描器
type Scanner struct {
	// MaxFileSize 超过该体积的文件跳过，0 表示不限制
	MaxFileSize int64
}

// New 创建扫描器
func New() *Scanner {
	return &Scanner{MaxFileSize: 2 << 20}
}

// Scan 扫描一个仓库目录，产出 featureID 对应的证据包
func (s *Scanner) Scan(repoPath, featureID string) (*evidence.Evidence, error) {
	info, err := os.Stat(repoPath)
	if err != nil {
		return nil, fmt.Errorf("无法访问仓库目录 %s: %w", repoPath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s 不是目录", repoPath)
	}

	log.Printf("🔍 开始扫描 %s（feature: %s）", repoPath, featureID)

	var static evidence.StaticSignals
	walkErr := filepath.WalkDir(repoPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !sourceExts[filepath.Ext(path)] {
			return nil
		}
		if s.MaxFileSize > 0 {
			if fi, err := d.Info(); err == nil && fi.Size() > s.MaxFileSize {
				return nil
			}
		}
		rel, err := filepath.Rel(repoPath, path)
		if err != nil {
			rel = path
		}
		if err := s.scanFile(path, rel, &static); err != nil {
			log.Printf("⚠️ 跳过文件 %s: %v", rel, err)
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("遍历仓库失败: %w", walkErr)
	}

	meta := evidence.Metadata{
		RunID:          uuid.NewString(),
		Repo:           repoPath,
		ScanTime:       time.Now().UTC(),
		ScannerVersion: Version,
	}
	ev := evidence.New(featureID, static, nil, meta)

	log.Printf("✅ 扫描完成: %d 个地理信号, %d 个年龄校验, %d 个数据驻留, %d 个上报客户端, %d 个功能开关",
		len(static.GeoBranching), len(static.AgeChecks), len(static.DataResidency),
		len(static.ReportingClients), len(static.Flags))

	return ev, nil
}

// scanFile 逐行匹配单个文件
func (s *Scanner) scanFile(path, rel string, static *evidence.StaticSignals) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()

		if geoKeywordRe.MatchString(line) {
			if countries := extractCountries(line); len(countries) > 0 {
				static.GeoBranching = append(static.GeoBranching, evidence.GeoSignal{
					File:      rel,
					Line:      lineNo,
					Countries: countries,
					Condition: strings.TrimSpace(line),
				})
			}
		}

		if ageCheckRe.MatchString(line) {
			static.AgeChecks = append(static.AgeChecks, evidence.AgeCheckSignal{
				File:             rel,
				Line:             lineNo,
				Lib:              extractAgeLib(line),
				Threshold:        extractThreshold(line),
				VerificationType: classifyAgeCheck(line),
			})
		}

		if residencyRe.MatchString(line) {
			sig := evidence.DataResidencySignal{File: rel, Line: lineNo}
			if m := regionNameRe.FindStringSubmatch(line); m != nil {
				sig.Regions = []string{strings.ToLower(m[1])}
			}
			static.DataResidency = append(static.DataResidency, sig)
		}

		if reportingRe.MatchString(line) {
			static.ReportingClients = append(static.ReportingClients, evidence.ReportingClientSignal{
				Client: "NCMEC",
				File:   rel,
				Line:   lineNo,
			})
		}

		if recoRe.MatchString(line) {
			static.RecoSystem = true
		}
		if pfControlRe.MatchString(line) {
			static.PFControls = true
		}

		for _, m := range flagRe.FindAllStringSubmatch(line, -1) {
			static.Flags = append(static.Flags, evidence.FlagSignal{
				Name: m[1],
				File: rel,
				Line: lineNo,
			})
		}
	}
	return sc.Err()
}

// extractCountries 从一行代码里抽出去重排序后的国家码
func extractCountries(line string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range countryCodeRe.FindAllStringSubmatch(line, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	sort.Strings(out)
	return out
}

func extractAgeLib(line string) string {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "age_gate"):
		return "age_gate"
	case strings.Contains(lower, "age_verify"), strings.Contains(lower, "verify_age"):
		return "age_verify"
	default:
		return "unknown"
	}
}

func extractThreshold(line string) *int {
	m := ageThreshRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}

// classifyAgeCheck 按关键词推断校验强度：
// 出现拦截/限制类动词算 enforcement，出现校验类动词算 validation，
// 只出现收集类字段算 collection
func classifyAgeCheck(line string) string {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "block"), strings.Contains(lower, "restrict"),
		strings.Contains(lower, "enforce"), strings.Contains(lower, "deny"):
		return evidence.VerificationEnforcement
	case strings.Contains(lower, "verify"), strings.Contains(lower, "validate"),
		strings.Contains(lower, "check_age"):
		return evidence.VerificationValidation
	default:
		return evidence.VerificationCollection
	}
}
