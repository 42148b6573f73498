package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/config endpoint so the same JSON can be
// used for both startup configuration and runtime inspection.
type TuningConfig struct {
	// Solver params
	WavelengthM    *float64 `json:"wavelength_m,omitempty"`
	CutPhiDeg      *float64 `json:"cut_phi_deg,omitempty"`
	CutConvention  *string  `json:"cut_convention,omitempty"`  // "unity" or "zero"
	GridConvention *string  `json:"grid_convention,omitempty"` // "unity" or "zero"
	DefaultScale   *string  `json:"default_scale,omitempty"`   // "db" or "linear"

	// Element pattern import params
	EfieldFreqGHz *float64 `json:"efield_freq_ghz,omitempty"` // 0 disables the frequency filter
	ThetaStride   *int     `json:"theta_stride,omitempty"`

	// Scheduler params
	DebounceWindow  *string `json:"debounce_window,omitempty"` // duration string like "250ms"
	WorkerQueueSize *int    `json:"worker_queue_size,omitempty"`
	EventBufferSize *int    `json:"event_buffer_size,omitempty"`

	// Chart params
	MaxChartPoints *int  `json:"max_chart_points,omitempty"`
	PNGPlots       *bool `json:"png_plots,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// with its built-in default. The values mirror DefaultConfigPath so the
// binary behaves identically with or without the file present.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		WavelengthM:     ptrFloat64(0.3),
		CutPhiDeg:       ptrFloat64(0),
		CutConvention:   ptrString("unity"),
		GridConvention:  ptrString("zero"),
		DefaultScale:    ptrString("db"),
		EfieldFreqGHz:   ptrFloat64(1.0),
		ThetaStride:     ptrInt(1),
		DebounceWindow:  ptrString("250ms"),
		WorkerQueueSize: ptrInt(4),
		EventBufferSize: ptrInt(16),
		MaxChartPoints:  ptrInt(1000),
		PNGPlots:        ptrBool(true),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // deeper packages
		"../../../../" + DefaultConfigPath, // even deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	// Validate WavelengthM if set
	if c.WavelengthM != nil {
		if *c.WavelengthM <= 0 {
			return fmt.Errorf("wavelength_m must be positive, got %f", *c.WavelengthM)
		}
	}

	// Validate EfieldFreqGHz if set (zero disables the filter)
	if c.EfieldFreqGHz != nil {
		if *c.EfieldFreqGHz < 0 {
			return fmt.Errorf("efield_freq_ghz must be non-negative, got %f", *c.EfieldFreqGHz)
		}
	}

	// Validate ThetaStride if set
	if c.ThetaStride != nil {
		if *c.ThetaStride < 0 {
			return fmt.Errorf("theta_stride must be non-negative, got %d", *c.ThetaStride)
		}
	}

	// Validate DebounceWindow can be parsed if set
	if c.DebounceWindow != nil && *c.DebounceWindow != "" {
		if _, err := time.ParseDuration(*c.DebounceWindow); err != nil {
			return fmt.Errorf("invalid debounce_window '%s': %w", *c.DebounceWindow, err)
		}
	}

	// Validate WorkerQueueSize if set
	if c.WorkerQueueSize != nil {
		if *c.WorkerQueueSize < 1 {
			return fmt.Errorf("worker_queue_size must be at least 1, got %d", *c.WorkerQueueSize)
		}
	}

	// Validate EventBufferSize if set
	if c.EventBufferSize != nil {
		if *c.EventBufferSize < 1 {
			return fmt.Errorf("event_buffer_size must be at least 1, got %d", *c.EventBufferSize)
		}
	}

	// Validate MaxChartPoints if set
	if c.MaxChartPoints != nil {
		if *c.MaxChartPoints < 2 {
			return fmt.Errorf("max_chart_points must be at least 2, got %d", *c.MaxChartPoints)
		}
	}

	// Validate DefaultScale if set
	if c.DefaultScale != nil && *c.DefaultScale != "" {
		if *c.DefaultScale != "db" && *c.DefaultScale != "linear" {
			return fmt.Errorf("default_scale must be \"db\" or \"linear\", got %q", *c.DefaultScale)
		}
	}

	// Validate conventions if set
	if c.CutConvention != nil && *c.CutConvention != "" {
		if *c.CutConvention != "unity" && *c.CutConvention != "zero" {
			return fmt.Errorf("cut_convention must be \"unity\" or \"zero\", got %q", *c.CutConvention)
		}
	}
	if c.GridConvention != nil && *c.GridConvention != "" {
		if *c.GridConvention != "unity" && *c.GridConvention != "zero" {
			return fmt.Errorf("grid_convention must be \"unity\" or \"zero\", got %q", *c.GridConvention)
		}
	}

	return nil
}

// GetDebounceWindow parses and returns the DebounceWindow as a time.Duration.
func (c *TuningConfig) GetDebounceWindow() time.Duration {
	if c.DebounceWindow == nil || *c.DebounceWindow == "" {
		return 250 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.DebounceWindow)
	if err != nil {
		return 250 * time.Millisecond // default on parse error
	}
	return d
}

// GetWavelengthM returns the wavelength_m value or the default.
func (c *TuningConfig) GetWavelengthM() float64 {
	if c.WavelengthM == nil {
		return 0.3 // default
	}
	return *c.WavelengthM
}

// GetCutPhiDeg returns the cut_phi_deg value or the default.
func (c *TuningConfig) GetCutPhiDeg() float64 {
	if c.CutPhiDeg == nil {
		return 0 // default: E-plane
	}
	return *c.CutPhiDeg
}

// GetCutConvention returns the cut_convention value or the default.
func (c *TuningConfig) GetCutConvention() string {
	if c.CutConvention == nil || *c.CutConvention == "" {
		return "unity" // default
	}
	return *c.CutConvention
}

// GetGridConvention returns the grid_convention value or the default.
func (c *TuningConfig) GetGridConvention() string {
	if c.GridConvention == nil || *c.GridConvention == "" {
		return "zero" // default
	}
	return *c.GridConvention
}

// GetDefaultScale returns the default_scale value or the default.
func (c *TuningConfig) GetDefaultScale() string {
	if c.DefaultScale == nil || *c.DefaultScale == "" {
		return "db" // default
	}
	return *c.DefaultScale
}

// GetEfieldFreqGHz returns the efield_freq_ghz value or the default.
func (c *TuningConfig) GetEfieldFreqGHz() float64 {
	if c.EfieldFreqGHz == nil {
		return 1.0 // default
	}
	return *c.EfieldFreqGHz
}

// GetThetaStride returns the theta_stride value or the default.
func (c *TuningConfig) GetThetaStride() int {
	if c.ThetaStride == nil {
		return 1 // default: keep every row
	}
	return *c.ThetaStride
}

// GetWorkerQueueSize returns the worker_queue_size value or the default.
func (c *TuningConfig) GetWorkerQueueSize() int {
	if c.WorkerQueueSize == nil {
		return 4 // default
	}
	return *c.WorkerQueueSize
}

// GetEventBufferSize returns the event_buffer_size value or the default.
func (c *TuningConfig) GetEventBufferSize() int {
	if c.EventBufferSize == nil {
		return 16 // default
	}
	return *c.EventBufferSize
}

// GetMaxChartPoints returns the max_chart_points value or the default.
func (c *TuningConfig) GetMaxChartPoints() int {
	if c.MaxChartPoints == nil {
		return 1000 // default
	}
	return *c.MaxChartPoints
}

// GetPNGPlots returns the png_plots value or the default.
func (c *TuningConfig) GetPNGPlots() bool {
	if c.PNGPlots == nil {
		return true // default: serve PNG renders
	}
	return *c.PNGPlots
}
