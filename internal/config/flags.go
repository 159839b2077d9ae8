package config

import "flag"

// Flags holds command-line overrides registered on a FlagSet.
type Flags struct {
	config       *string
	debug        *bool
	logFile      *string
	targetSize   *float64
	maxInstances *int
	noColors     *bool
	linear       *bool
	root         *string
}

// RegisterFlags registers the config flags on fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	return &Flags{
		config:       fs.String("config", "", "Path to config file"),
		debug:        fs.Bool("debug", false, "Enable debug logging"),
		logFile:      fs.String("log-file", "", "Write logs to this file"),
		targetSize:   fs.Float64("size", 0, "Normalized size of the longest axis"),
		maxInstances: fs.Int("max-instances", -1, "Object visit limit (0 for none)"),
		noColors:     fs.Bool("no-colors", false, "Disable vertex colors"),
		linear:       fs.Bool("linear", false, "Convert colors to linear light"),
		root:         fs.String("root", "", "Base directory for relative package paths"),
	}
}

// ConfigPath returns the explicit config path if provided via --config flag.
func (f *Flags) ConfigPath() string {
	if f == nil {
		return ""
	}
	return *f.config
}

// apply applies CLI flag overrides to the config.
func (f *Flags) apply(cfg *Config) {
	if f == nil {
		return
	}
	if *f.debug {
		cfg.Logging.Level = "debug"
	}
	if *f.logFile != "" {
		cfg.Logging.LogFile = *f.logFile
	}
	if *f.targetSize > 0 {
		cfg.Scene.TargetSize = *f.targetSize
	}
	if *f.maxInstances >= 0 {
		cfg.Scene.MaxInstances = *f.maxInstances
	}
	if *f.noColors {
		cfg.Colors.Enabled = false
	}
	if *f.linear {
		cfg.Colors.Linear = true
	}
	if *f.root != "" {
		cfg.Loader.Root = *f.root
	}
}
