// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Detector provider names accepted by detect.provider.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderNone      = "none"
)

// Print dispatch modes accepted by print.mode.
const (
	PrintModeIPP = "ipp"
	PrintModeLP  = "lp"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Label   LabelConfig   `mapstructure:"label"`
	Render  RenderConfig  `mapstructure:"render"`
	Detect  DetectConfig  `mapstructure:"detect"`
	Extract ExtractConfig `mapstructure:"extract"`
	Process ProcessConfig `mapstructure:"process"`
	Print   PrintConfig   `mapstructure:"print"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LabelConfig fixes the physical label geometry and print-path defaults.
type LabelConfig struct {
	WidthInches     float64 `mapstructure:"width_in"`
	HeightInches    float64 `mapstructure:"height_in"`
	DPI             int     `mapstructure:"dpi"`
	DefaultScalePct int     `mapstructure:"default_scale_pct"`
	Dither          bool    `mapstructure:"dither"`
}

// RenderConfig governs PDF rasterization.
type RenderConfig struct {
	DPI int `mapstructure:"dpi"`
}

// DetectConfig selects and throttles the vision detector.
type DetectConfig struct {
	Provider       string  `mapstructure:"provider"`
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	QPS            float64 `mapstructure:"qps"`
	MaxTokens      int     `mapstructure:"max_tokens"`
}

// ExtractConfig tunes bounding-box validation and the letter-size heuristic.
type ExtractConfig struct {
	SnapPx                   int     `mapstructure:"snap_px"`
	MinAreaPct               float64 `mapstructure:"min_area_pct"`
	MaxAreaPct               float64 `mapstructure:"max_area_pct"`
	BoundsTolerancePx        int     `mapstructure:"bounds_tolerance_px"`
	LetterAspectTolerancePct float64 `mapstructure:"letter_aspect_tolerance_pct"`
}

// ProcessConfig tunes whitespace trimming during canvas normalization.
type ProcessConfig struct {
	TrimLuma     int     `mapstructure:"trim_luma"`
	TrimMarginPx int     `mapstructure:"trim_margin_px"`
	MinTrimPct   float64 `mapstructure:"min_trim_pct"`
}

// PrintConfig selects the spooler backend and its connection details.
type PrintConfig struct {
	Mode           string `mapstructure:"mode"`
	CUPSHost       string `mapstructure:"cups_host"`
	CUPSPort       int    `mapstructure:"cups_port"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	UseTLS         bool   `mapstructure:"use_tls"`
	DefaultPrinter string `mapstructure:"default_printer"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LABELD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8099)
	v.SetDefault("label.width_in", 4.0)
	v.SetDefault("label.height_in", 6.0)
	v.SetDefault("label.dpi", 203)
	v.SetDefault("label.default_scale_pct", 100)
	v.SetDefault("label.dither", false)
	v.SetDefault("render.dpi", 300)
	v.SetDefault("detect.provider", ProviderAnthropic)
	v.SetDefault("detect.model", "")
	v.SetDefault("detect.timeout_seconds", 30)
	v.SetDefault("detect.qps", 1.0)
	v.SetDefault("detect.max_tokens", 256)
	v.SetDefault("extract.snap_px", 10)
	v.SetDefault("extract.min_area_pct", 10.0)
	v.SetDefault("extract.max_area_pct", 90.0)
	v.SetDefault("extract.bounds_tolerance_px", 5)
	v.SetDefault("extract.letter_aspect_tolerance_pct", 13.0)
	v.SetDefault("process.trim_luma", 245)
	v.SetDefault("process.trim_margin_px", 10)
	v.SetDefault("process.min_trim_pct", 5.0)
	v.SetDefault("print.mode", PrintModeIPP)
	v.SetDefault("print.cups_host", "localhost")
	v.SetDefault("print.cups_port", 631)
	v.SetDefault("print.timeout_seconds", 10)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Label.WidthInches <= 0 || c.Label.HeightInches <= 0 {
		return fmt.Errorf("label.width_in and label.height_in must be > 0")
	}
	if c.Label.DPI <= 0 {
		return fmt.Errorf("label.dpi must be > 0")
	}
	if c.Label.DefaultScalePct < 50 || c.Label.DefaultScalePct > 100 {
		return fmt.Errorf("label.default_scale_pct must be between 50 and 100")
	}
	if c.Render.DPI <= 0 {
		return fmt.Errorf("render.dpi must be > 0")
	}
	switch c.Detect.Provider {
	case ProviderAnthropic, ProviderGemini, ProviderNone:
	default:
		return fmt.Errorf("detect.provider must be one of anthropic, gemini, none")
	}
	if c.Detect.Provider != ProviderNone && c.Detect.TimeoutSeconds <= 0 {
		return fmt.Errorf("detect.timeout_seconds must be > 0")
	}
	if c.Detect.QPS < 0 {
		return fmt.Errorf("detect.qps must be >= 0")
	}
	if c.Extract.SnapPx <= 0 {
		return fmt.Errorf("extract.snap_px must be > 0")
	}
	if c.Extract.MinAreaPct <= 0 || c.Extract.MaxAreaPct > 100 ||
		c.Extract.MinAreaPct >= c.Extract.MaxAreaPct {
		return fmt.Errorf("extract.min_area_pct and extract.max_area_pct must satisfy 0 < min < max <= 100")
	}
	if c.Process.TrimLuma < 0 || c.Process.TrimLuma > 255 {
		return fmt.Errorf("process.trim_luma must be between 0 and 255")
	}
	switch c.Print.Mode {
	case PrintModeIPP, PrintModeLP:
	default:
		return fmt.Errorf("print.mode must be one of ipp, lp")
	}
	if c.Print.Mode == PrintModeIPP && c.Print.CUPSPort <= 0 {
		return fmt.Errorf("print.cups_port must be > 0 in ipp mode")
	}
	return nil
}

// PixelWidth returns the label canvas width in pixels.
func (c Config) PixelWidth() int {
	return int(math.Round(c.Label.WidthInches * float64(c.Label.DPI)))
}

// PixelHeight returns the label canvas height in pixels.
func (c Config) PixelHeight() int {
	return int(math.Round(c.Label.HeightInches * float64(c.Label.DPI)))
}

// DetectTimeout converts the detector timeout config into a duration.
func (c Config) DetectTimeout() time.Duration {
	return time.Duration(c.Detect.TimeoutSeconds) * time.Second
}

// PrintTimeout converts the spooler timeout config into a duration.
func (c Config) PrintTimeout() time.Duration {
	return time.Duration(c.Print.TimeoutSeconds) * time.Second
}

// Redacted returns a loggable view of the config with secrets masked.
func (c Config) Redacted() map[string]any {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	return map[string]any{
		"server": map[string]any{"port": c.Server.Port},
		"auth": map[string]any{
			"enabled": c.Auth.Enabled,
			"api_key": mask(c.Auth.APIKey),
		},
		"label": map[string]any{
			"width_in":          c.Label.WidthInches,
			"height_in":         c.Label.HeightInches,
			"dpi":               c.Label.DPI,
			"default_scale_pct": c.Label.DefaultScalePct,
			"dither":            c.Label.Dither,
			"pixel_width":       c.PixelWidth(),
			"pixel_height":      c.PixelHeight(),
		},
		"render": map[string]any{"dpi": c.Render.DPI},
		"detect": map[string]any{
			"provider":        c.Detect.Provider,
			"api_key":         mask(c.Detect.APIKey),
			"model":           c.Detect.Model,
			"timeout_seconds": c.Detect.TimeoutSeconds,
			"qps":             c.Detect.QPS,
			"max_tokens":      c.Detect.MaxTokens,
		},
		"extract": map[string]any{
			"snap_px":                     c.Extract.SnapPx,
			"min_area_pct":                c.Extract.MinAreaPct,
			"max_area_pct":                c.Extract.MaxAreaPct,
			"bounds_tolerance_px":         c.Extract.BoundsTolerancePx,
			"letter_aspect_tolerance_pct": c.Extract.LetterAspectTolerancePct,
		},
		"process": map[string]any{
			"trim_luma":      c.Process.TrimLuma,
			"trim_margin_px": c.Process.TrimMarginPx,
			"min_trim_pct":   c.Process.MinTrimPct,
		},
		"print": map[string]any{
			"mode":            c.Print.Mode,
			"cups_host":       c.Print.CUPSHost,
			"cups_port":       c.Print.CUPSPort,
			"username":        c.Print.Username,
			"password":        mask(c.Print.Password),
			"use_tls":         c.Print.UseTLS,
			"default_printer": c.Print.DefaultPrinter,
			"timeout_seconds": c.Print.TimeoutSeconds,
		},
		"logging": map[string]any{
			"development": c.Logging.Development,
			"level":       c.Logging.Level,
		},
	}
}
