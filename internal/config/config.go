package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/docframe/internal/crop"
	"github.com/MeKo-Tech/docframe/internal/framing"
	"github.com/MeKo-Tech/docframe/internal/raster"
	"github.com/MeKo-Tech/docframe/internal/review"
	"github.com/MeKo-Tech/docframe/internal/utils"
	"github.com/MeKo-Tech/docframe/internal/viewport"
	"gopkg.in/yaml.v3"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	opts := review.DefaultOptions()
	return Config{
		LogLevel:     "info",
		Verbose:      false,
		DocumentsDir: "documents",
		Viewport: ViewportConfig{
			Width:             opts.ContainerWidth,
			Height:            opts.ContainerHeight,
			HorizontalPadding: opts.HorizontalPadding,
			VerticalPadding:   opts.VerticalPadding,
			PageGap:           viewport.DefaultPageGap,
			FillRatio:         framing.DefaultFillRatio,
			MinZoom:           framing.DefaultMinZoom,
			MaxZoom:           framing.DefaultMaxZoom,
			ScrollDurationMS:  int(viewport.DefaultScrollDuration / time.Millisecond),
			ScrollFrames:      viewport.DefaultScrollFrames,
		},
		Raster: RasterConfig{
			RenderWidth: raster.DefaultRenderWidth,
		},
		Crop: CropConfig{
			PaddingX: crop.DefaultPaddingX,
			PaddingY: crop.DefaultPaddingY,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			TimeoutSec:      30,
			ShutdownTimeout: 10,
			OverlayColor:    "#FF0000",
			MaxSessions:     64,
			MaxViewport:     4096,

			RequestsPerMinute: 120,
			RequestsPerHour:   3000,
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.Viewport.ScrollDurationMS < 0 {
		return fmt.Errorf("invalid viewport.scroll_duration_ms: %d (must not be negative)", c.Viewport.ScrollDurationMS)
	}
	if c.Viewport.ScrollDurationMS > 0 && c.Viewport.ScrollFrames <= 0 {
		return fmt.Errorf("invalid viewport.scroll_frames: %d (must be positive when scrolling is animated)", c.Viewport.ScrollFrames)
	}
	if err := c.ReviewOptions().Validate(); err != nil {
		return fmt.Errorf("invalid review options: %w", err)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown timeout: %d (must not be negative)", c.Server.ShutdownTimeout)
	}
	if c.Server.MaxSessions <= 0 {
		return fmt.Errorf("invalid max sessions: %d (must be positive)", c.Server.MaxSessions)
	}
	if c.Server.MaxViewport <= 0 || c.Server.MaxViewport > review.MaxRasterWidth {
		return fmt.Errorf("invalid max viewport: %d (must be between 1 and %d)", c.Server.MaxViewport, review.MaxRasterWidth)
	}
	if c.Server.RequestsPerMinute < 0 || c.Server.RequestsPerHour < 0 || c.Server.MaxRequestsPerDay < 0 {
		return errors.New("invalid rate limits: request limits must not be negative")
	}
	if utils.ParseHexColor(c.Server.OverlayColor) == nil {
		return fmt.Errorf("invalid overlay color: %q (expected #RRGGBB)", c.Server.OverlayColor)
	}

	return nil
}

// ReviewOptions converts the config to review session options.
func (c *Config) ReviewOptions() review.Options {
	opts := review.DefaultOptions()
	opts.ContainerWidth = c.Viewport.Width
	opts.ContainerHeight = c.Viewport.Height
	opts.HorizontalPadding = c.Viewport.HorizontalPadding
	opts.VerticalPadding = c.Viewport.VerticalPadding
	opts.PageGap = c.Viewport.PageGap
	opts.RenderWidth = c.Raster.RenderWidth
	opts.Framing = framing.Options{
		FillRatio: c.Viewport.FillRatio,
		MinZoom:   c.Viewport.MinZoom,
		MaxZoom:   c.Viewport.MaxZoom,
	}
	opts.Crop = crop.Options{
		PaddingX: c.Crop.PaddingX,
		PaddingY: c.Crop.PaddingY,
	}
	opts.ScrollDuration = time.Duration(c.Viewport.ScrollDurationMS) * time.Millisecond
	opts.ScrollFrames = c.Viewport.ScrollFrames
	if col := utils.ParseHexColor(c.Server.OverlayColor); col != nil {
		opts.OverlayColor = col
	}
	return opts
}

// WithViewport returns a copy of the config whose framing viewport measures w x h
// pixels. The container grows by the configured padding.
func (c Config) WithViewport(w, h int) Config {
	c.Viewport.Width = w + c.Viewport.HorizontalPadding
	c.Viewport.Height = h + c.Viewport.VerticalPadding
	return c
}

// YAML renders the configuration as a YAML document.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
