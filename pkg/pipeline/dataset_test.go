package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdsgo/cds/pkg/evidence"
	"github.com/cdsgo/cds/pkg/probe"
	"github.com/cdsgo/cds/pkg/scanner"
)

// TestLoadDataset 读取数据集 CSV，空 feature_id 的行被跳过
func TestLoadDataset(t *testing.T) {
	rows, err := LoadDataset(filepath.Join("..", "..", "testdata", "dataset.csv"))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, DatasetRow{FeatureID: "user_feed", RepoPath: "testdata/sample_repo", Persona: "ut_minor"}, rows[0])
	assert.Equal(t, "fr_adult", rows[1].Persona)
	assert.Equal(t, DatasetRow{FeatureID: "empty_feature"}, rows[2])
}

// TestLoadDataset_MissingFeatureColumn 缺 feature_id 列直接报错
func TestLoadDataset_MissingFeatureColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,repo\nfoo,bar\n"), 0o644))

	_, err := LoadDataset(path)
	assert.Error(t, err)
}

// TestLoadDataset_MissingFile 文件不存在报错
func TestLoadDataset_MissingFile(t *testing.T) {
	_, err := LoadDataset(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

// TestRunDataset 扫描加探测加分析的全链路，坏仓库只降级单行
func TestRunDataset(t *testing.T) {
	p := newTestPipeline(t)
	repo := filepath.Join("..", "..", "testdata", "sample_repo")

	rows := []DatasetRow{
		{FeatureID: "user_feed", RepoPath: repo, Persona: "ut_minor"},
		{FeatureID: "profile_storage", RepoPath: repo, Persona: "fr_adult"},
		{FeatureID: "broken", RepoPath: filepath.Join(t.TempDir(), "missing"), Persona: "ut_minor"},
		{FeatureID: "bare"},
	}

	records := p.RunDataset(context.Background(), rows)
	require.Len(t, records, 4)

	assert.Equal(t, "user_feed", records[0].FeatureID)
	assert.True(t, records[0].RequiresGeoLogic)
	assert.NotEmpty(t, records[0].RuntimeObservation)

	assert.Equal(t, "profile_storage", records[1].FeatureID)
	assert.NotEqual(t, records[0].RuntimeObservation, records[1].RuntimeObservation, "不同画像的运行时观察应不同")

	assert.Equal(t, "broken", records[2].FeatureID)
	assert.True(t, records[2].NeedsReview)
	assert.Equal(t, "critical", records[2].Severity)
	assert.Contains(t, records[2].Reasoning, "证据采集失败")

	assert.Equal(t, "bare", records[3].FeatureID)
}

// TestBuildEvidence_FreshRunIDPerFeature 共享扫描缓存的 feature 各自有独立 run_id
func TestBuildEvidence_FreshRunIDPerFeature(t *testing.T) {
	sc := scanner.New()
	prober := probe.New()
	cache := make(map[string]*evidence.Evidence)
	repo := filepath.Join("..", "..", "testdata", "sample_repo")

	first, err := buildEvidence(sc, prober, cache, DatasetRow{FeatureID: "feed", RepoPath: repo})
	require.NoError(t, err)
	second, err := buildEvidence(sc, prober, cache, DatasetRow{FeatureID: "profile", RepoPath: repo})
	require.NoError(t, err)

	require.Len(t, cache, 1, "同一仓库只扫描一次")
	assert.NotEqual(t, first.Metadata.RunID, second.Metadata.RunID)
	assert.NotEmpty(t, second.Metadata.RunID)
	assert.Equal(t, first.Static.GeoBranching, second.Static.GeoBranching, "静态信号来自同一次扫描")
	assert.Equal(t, "profile", second.FeatureID)
}

// TestRunDataset_UnknownPersona 未知画像算采集失败
func TestRunDataset_UnknownPersona(t *testing.T) {
	p := newTestPipeline(t)
	records := p.RunDataset(context.Background(), []DatasetRow{
		{FeatureID: "f", Persona: "nobody"},
	})
	require.Len(t, records, 1)
	assert.True(t, records[0].NeedsReview)
	assert.Equal(t, "critical", records[0].Severity)
}
