package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorable/yolomark"
)

func TestDefaults(t *testing.T) {
	c, err := Load("yolomark", nil)
	require.NoError(t, err)

	assert.Equal(t, ModeServe, c.Mode)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, "localhost:8080", c.Listen)
	assert.Equal(t, yolomark.LabelOptions{Format: yolomark.PixelLabels, IDs: yolomark.PositionalIDs}, c.Labels)
	assert.Equal(t, 0.8, c.Split.TrainFraction)
	assert.Equal(t, yolomark.BernoulliSplit, c.Split.Mode)
	assert.Nil(t, c.Split.Seed)
	assert.Equal(t, 90, c.JPEGQuality)
	assert.Equal(t, yolomark.DefaultViewport, c.Viewport)
	assert.False(t, c.UseS3())
}

func TestExportArguments(t *testing.T) {
	images, out := t.TempDir(), t.TempDir()
	c, err := Load("yolomark", []string{
		"--mode", "export",
		"--images", images + "/",
		"--out", out,
		"--split", "0.7",
		"--split-mode", "fixed",
		"--seed", "42",
		"--label-format", "yolo",
		"--class-ids", "stable",
		"--resize-longer", "640",
		"--workers", "3",
	})
	require.NoError(t, err)
	assert.Equal(t, images, c.ImageDir)

	opts := c.ExportOptions()
	assert.Equal(t, 0.7, opts.TrainFraction)
	assert.Equal(t, yolomark.FixedSplit, opts.Mode)
	require.NotNil(t, opts.Seed)
	assert.Equal(t, int64(42), *opts.Seed)
	assert.Equal(t, yolomark.YOLOLabels, opts.Format)
	assert.Equal(t, yolomark.StableIDs, opts.IDs)
	assert.Equal(t, 640, opts.ResizeLonger)
	assert.Equal(t, 3, opts.Workers)
	assert.Equal(t, c.Labels, c.SaveOptions().LabelOptions)
}

func TestInvalidArguments(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
	}{
		{"unknown mode", []string{"--mode", "train"}},
		{"export without images", []string{"--mode", "export", "--out", dir}},
		{"save without output", []string{"--mode", "save", "--images", dir}},
		{"export into images", []string{"--mode", "export", "--images", dir, "--out", dir}},
		{"split above one", []string{"--split", "1.5"}},
		{"negative split", []string{"--split", "-0.1"}},
		{"label format", []string{"--label-format", "coco"}},
		{"class ids", []string{"--class-ids", "random"}},
		{"split mode", []string{"--split-mode", "stratified"}},
		{"jpeg quality", []string{"--jpeg-quality", "0"}},
		{"viewport", []string{"--viewport-width", "0"}},
		{"resize", []string{"--resize-shorter", "-1"}},
		{"unknown flag", []string{"--bogus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("yolomark", tt.args)
			assert.Error(t, err)
		})
	}
}

func TestInvalidSplitWrapsError(t *testing.T) {
	_, err := Load("yolomark", []string{"--split", "2"})
	assert.ErrorIs(t, err, yolomark.ErrInvalidSplit)
}

func TestSaveNextToImages(t *testing.T) {
	dir := t.TempDir()
	c, err := Load("yolomark", []string{"--mode", "save", "--images", dir, "--out", dir})
	require.NoError(t, err)
	assert.Equal(t, dir, c.OutDir)
}

func TestS3ReplacesOut(t *testing.T) {
	c, err := Load("yolomark", []string{"--mode", "export", "--images", t.TempDir(),
		"--s3-bucket", "datasets", "--s3-prefix", "run1"})
	require.NoError(t, err)
	assert.True(t, c.UseS3())
	assert.Equal(t, "datasets", c.S3.Bucket)
	assert.Equal(t, "run1", c.S3.Prefix)
	assert.Equal(t, "us-east-1", c.S3.Region)
}

func TestEnvironment(t *testing.T) {
	t.Setenv("YOLOMARK_SPLIT", "0.5")
	t.Setenv("YOLOMARK_LABEL_FORMAT", "yolo")
	t.Setenv("YOLOMARK_SEED", "7")

	c, err := Load("yolomark", nil)
	require.NoError(t, err)
	assert.Equal(t, 0.5, c.Split.TrainFraction)
	assert.Equal(t, yolomark.YOLOLabels, c.Labels.Format)
	require.NotNil(t, c.Split.Seed)
	assert.Equal(t, int64(7), *c.Split.Seed)

	// Flags take precedence.
	c, err = Load("yolomark", []string{"--split", "0.25"})
	require.NoError(t, err)
	assert.Equal(t, 0.25, c.Split.TrainFraction)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yolomark.yaml")
	require.NoError(t, os.WriteFile(path, []byte("split: 0.6\nlisten: \":9000\"\n"), 0644))

	c, err := Load("yolomark", []string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, 0.6, c.Split.TrainFraction)
	assert.Equal(t, ":9000", c.Listen)

	_, err = Load("yolomark", []string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestHelp(t *testing.T) {
	_, err := Load("yolomark", []string{"--help"})
	assert.ErrorIs(t, err, ErrHelp)
}
