package camera

// Preset names for common configurations
const (
	PresetDefault    = "default"
	Preset480p       = "480p"
	Preset720p       = "720p"
	Preset1080p      = "1080p"
	PresetLowLatency = "low-latency"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault:    DefaultConfig(),
		Preset480p:       SD480Config(),
		Preset720p:       HD720Config(),
		Preset1080p:      HD1080Config(),
		PresetLowLatency: LowLatencyConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{
		PresetDefault,
		Preset480p,
		Preset720p,
		Preset1080p,
		PresetLowLatency,
	}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// SD480Config returns 640x480.
func SD480Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 640
	cfg.Height = 480
	return cfg
}

// HD720Config returns 1280x720, the resolution the pose model is tuned for.
func HD720Config() Config {
	return DefaultConfig()
}

// HD1080Config returns 1920x1080. Frames get large; expect more skipped
// iterations on slow links.
func HD1080Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1920
	cfg.Height = 1080
	cfg.Framerate = 24
	return cfg
}

// LowLatencyConfig trades image quality for round-trip time.
func LowLatencyConfig() Config {
	cfg := SD480Config()
	cfg.Framerate = 15
	cfg.Quality = 60
	return cfg
}
