// Package config loads the yolomark configuration from flags, YOLOMARK_* environment variables
// and an optional config file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sensorable/yolomark"
)

// The run modes.
const (
	ModeServe  = "serve"
	ModeSave   = "save"
	ModeExport = "export"
)

// ErrHelp is returned by Load when -h or --help was given.
var ErrHelp = pflag.ErrHelp

// Config is the complete yolomark configuration.
type Config struct {
	Mode     string
	LogLevel string
	Listen   string

	ImageDir string // The folder of images to annotate.
	LabelDir string // A directory written by a previous save, to load annotations from.
	OutDir   string // The save or export target directory, unless S3 is used.

	Labels yolomark.LabelOptions
	Split  yolomark.SplitOptions

	ResizeLonger     int
	ResizeShorter    int
	DownsampleFilter string
	UpsampleFilter   string
	JPEGQuality      int
	Workers          int

	Viewport yolomark.Size

	S3 yolomark.S3Options
}

// UseS3 reports whether output goes to an S3 bucket instead of OutDir.
func (c *Config) UseS3() bool {
	return c.S3.Bucket != ""
}

// SaveOptions returns the options for yolomark.Save.
func (c *Config) SaveOptions() yolomark.SaveOptions {
	return yolomark.SaveOptions{LabelOptions: c.Labels}
}

// ExportOptions returns the options for yolomark.Export.
func (c *Config) ExportOptions() yolomark.ExportOptions {
	return yolomark.ExportOptions{
		LabelOptions:     c.Labels,
		SplitOptions:     c.Split,
		ResizeLonger:     c.ResizeLonger,
		ResizeShorter:    c.ResizeShorter,
		DownsampleFilter: c.DownsampleFilter,
		UpsampleFilter:   c.UpsampleFilter,
		JPEGQuality:      c.JPEGQuality,
		Workers:          c.Workers,
	}
}

// NewFlagSet returns the command line flags.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)

	fs.String("config", "", "Optional config file `path` (yaml, json or toml)")
	fs.String("mode", ModeServe, "The run mode {serve, save, export}")
	fs.String("log-level", "info", "The log `level` {debug, info, warn, error}")
	fs.String("listen", "localhost:8080", "The listen `address` in serve mode")

	// Path arguments.
	fs.String("images", "", "The `path` to the image input directory")
	fs.String("labels", "", "The `path` to a directory with saved annotations to load")
	fs.String("out", "", "The `path` to the save or export output directory")

	// Label encoding arguments.
	fs.String("label-format", "pixel",
		"The label coordinate format {pixel: integer x1 y1 x2 y2, yolo: normalised cx cy w h}")
	fs.String("class-ids", "position",
		"The class id scheme {position: index in the class list, stable: id given at creation}")

	// Split arguments.
	fs.Float64("split", 0.8, "The train `fraction` in [0, 1] for exports")
	fs.String("split-mode", "bernoulli",
		"How images are split {bernoulli: independent draw per image, fixed: exact count}")
	fs.Int64("seed", 0, "The random `seed` for the split (unset draws one from the clock)")

	// Image processing arguments.
	fs.Int("resize-longer", 0,
		"The target `length` for the longer side of exported images (zero to keep aspect ratio)")
	fs.Int("resize-shorter", 0,
		"The target `length` for the shorter side of exported images (zero to keep aspect ratio)")
	fs.String("downsample-filter", "box",
		"The filter to use when downsampling an image {nearest, box, linear, gaussian, lanczos}")
	fs.String("upsample-filter", "linear",
		"The filter to use when upsampling an image {nearest, box, linear, gaussian, lanczos}")
	fs.Int("jpeg-quality", 90, "The quality to use when encoding JPEGs [1, 100]")
	fs.Int("workers", 0, "The number of concurrent image copies (zero for 2x CPUs)")

	// Canvas arguments.
	fs.Int("viewport-width", yolomark.DefaultViewport.Width, "The initial canvas width in serve mode")
	fs.Int("viewport-height", yolomark.DefaultViewport.Height, "The initial canvas height in serve mode")

	// S3 output arguments.
	fs.String("s3-bucket", "", "Write output to this S3 bucket instead of -out")
	fs.String("s3-prefix", "", "The key prefix for S3 output")
	fs.String("s3-endpoint", "", "A custom S3 endpoint, e.g. localhost:9000 for MinIO")
	fs.String("s3-region", "us-east-1", "The S3 region")
	fs.String("s3-access-key-id", "", "The S3 access key id (empty uses the default credentials)")
	fs.String("s3-secret-access-key", "", "The S3 secret access key")
	fs.Bool("s3-use-ssl", false, "Use https for a custom S3 endpoint without scheme")

	return fs
}

// Load parses args and builds the validated Config.
func Load(name string, args []string) (*Config, error) {
	fs := NewFlagSet(name)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	v.SetEnvPrefix("YOLOMARK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	c := &Config{
		Mode:             strings.ToLower(v.GetString("mode")),
		LogLevel:         v.GetString("log-level"),
		Listen:           v.GetString("listen"),
		ImageDir:         v.GetString("images"),
		LabelDir:         v.GetString("labels"),
		OutDir:           v.GetString("out"),
		ResizeLonger:     v.GetInt("resize-longer"),
		ResizeShorter:    v.GetInt("resize-shorter"),
		DownsampleFilter: v.GetString("downsample-filter"),
		UpsampleFilter:   v.GetString("upsample-filter"),
		JPEGQuality:      v.GetInt("jpeg-quality"),
		Workers:          v.GetInt("workers"),
		Viewport: yolomark.Size{
			Width:  v.GetInt("viewport-width"),
			Height: v.GetInt("viewport-height"),
		},
		S3: yolomark.S3Options{
			Endpoint:        v.GetString("s3-endpoint"),
			AccessKeyID:     v.GetString("s3-access-key-id"),
			SecretAccessKey: v.GetString("s3-secret-access-key"),
			UseSSL:          v.GetBool("s3-use-ssl"),
			Bucket:          v.GetString("s3-bucket"),
			Region:          v.GetString("s3-region"),
			Prefix:          v.GetString("s3-prefix"),
		},
	}

	var err error
	if c.Labels.Format, err = yolomark.ParseLabelFormat(v.GetString("label-format")); err != nil {
		return nil, err
	}
	if c.Labels.IDs, err = yolomark.ParseIDScheme(v.GetString("class-ids")); err != nil {
		return nil, err
	}
	c.Split.TrainFraction = v.GetFloat64("split")
	if c.Split.Mode, err = yolomark.ParseSplitMode(v.GetString("split-mode")); err != nil {
		return nil, err
	}
	if v.IsSet("seed") {
		seed := v.GetInt64("seed")
		c.Split.Seed = &seed
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the argument combinations and cleans the paths.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeServe:
	case ModeSave, ModeExport:
		if c.ImageDir == "" {
			return errors.New("missing image input path argument")
		}
		if c.OutDir == "" && !c.UseS3() {
			return errors.New("missing output path argument (-out or -s3-bucket)")
		}
	default:
		return fmt.Errorf("unsupported mode %q", c.Mode)
	}

	if err := yolomark.ValidateTrainFraction(c.Split.TrainFraction); err != nil {
		return fmt.Errorf("invalid -split %v: %w", c.Split.TrainFraction, err)
	}
	if c.ResizeLonger < 0 || c.ResizeShorter < 0 {
		return errors.New("invalid resize length")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("invalid -jpeg-quality %d, must be in [1, 100]", c.JPEGQuality)
	}
	if c.Viewport.Empty() {
		return errors.New("invalid viewport size")
	}

	// Clean path arguments.
	if c.ImageDir != "" {
		c.ImageDir = filepath.Clean(c.ImageDir)
	}
	if c.LabelDir != "" {
		c.LabelDir = filepath.Clean(c.LabelDir)
	}
	if c.OutDir != "" {
		c.OutDir = filepath.Clean(c.OutDir)
		if c.Mode == ModeExport && c.OutDir == c.ImageDir {
			return errors.New("the image input and export paths cannot be identical")
		}
	}

	return nil
}
