//nolint:lll
package config

// Config represents the complete configuration for the docframe review service.
// It is shared by the serve, frame and crop commands and supports loading from
// configuration files, .env files, environment variables and command-line flags.
type Config struct {
	// Global settings
	LogLevel     string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose      bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`
	DocumentsDir string `mapstructure:"documents_dir" yaml:"documents_dir" json:"documents_dir"`

	// Document viewport and framing
	Viewport ViewportConfig `mapstructure:"viewport" yaml:"viewport" json:"viewport"`

	// Page rasterization
	Raster RasterConfig `mapstructure:"raster" yaml:"raster" json:"raster"`

	// Line-item crop previews
	Crop CropConfig `mapstructure:"crop" yaml:"crop" json:"crop"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
}

// ViewportConfig describes the scrollable document container and the zoom planner.
type ViewportConfig struct {
	Width             int     `mapstructure:"width" yaml:"width" json:"width"`
	Height            int     `mapstructure:"height" yaml:"height" json:"height"`
	HorizontalPadding int     `mapstructure:"horizontal_padding" yaml:"horizontal_padding" json:"horizontal_padding"`
	VerticalPadding   int     `mapstructure:"vertical_padding" yaml:"vertical_padding" json:"vertical_padding"`
	PageGap           float64 `mapstructure:"page_gap" yaml:"page_gap" json:"page_gap"`

	// Zoom planning
	FillRatio float64 `mapstructure:"fill_ratio" yaml:"fill_ratio" json:"fill_ratio"`
	MinZoom   float64 `mapstructure:"min_zoom" yaml:"min_zoom" json:"min_zoom"`
	MaxZoom   float64 `mapstructure:"max_zoom" yaml:"max_zoom" json:"max_zoom"`

	// Smooth scrolling; a zero duration jumps immediately.
	ScrollDurationMS int `mapstructure:"scroll_duration_ms" yaml:"scroll_duration_ms" json:"scroll_duration_ms"`
	ScrollFrames     int `mapstructure:"scroll_frames" yaml:"scroll_frames" json:"scroll_frames"`
}

// RasterConfig contains page rasterization settings.
type RasterConfig struct {
	RenderWidth int `mapstructure:"render_width" yaml:"render_width" json:"render_width"`
}

// CropConfig contains the padding added around cropped line items, in render pixels.
type CropConfig struct {
	PaddingX int `mapstructure:"padding_x" yaml:"padding_x" json:"padding_x"`
	PaddingY int `mapstructure:"padding_y" yaml:"padding_y" json:"padding_y"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	OverlayColor    string `mapstructure:"overlay_color" yaml:"overlay_color" json:"overlay_color"`
	MaxSessions     int    `mapstructure:"max_sessions" yaml:"max_sessions" json:"max_sessions"`
	// MaxViewport bounds each side of a viewport requested by a client, in pixels.
	MaxViewport int `mapstructure:"max_viewport" yaml:"max_viewport" json:"max_viewport"`

	// Per-client request limits for session actions; zero disables a window.
	RateLimitEnabled  bool `mapstructure:"rate_limit_enabled" yaml:"rate_limit_enabled" json:"rate_limit_enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int  `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int  `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
}
