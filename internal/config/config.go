package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultExpectations = "expectations.yaml"
	DefaultFormat       = "auto"
	DefaultTheme        = "default"
)

// App is the resolved application configuration.
type App struct {
	// Expectations is the path to the expectation table.
	Expectations string `yaml:"expectations"`

	// Packages are the default go list patterns to run.
	Packages []string `yaml:"packages"`

	// Format selects the renderer: auto, terminal, llm, json.
	Format string `yaml:"format"`

	// Theme names the terminal theme: default, orca, mono.
	Theme string `yaml:"theme"`

	// AllowUPass downgrades unexpected passes from failures to warnings.
	AllowUPass bool `yaml:"allow_upass"`

	NoColor bool `yaml:"no_color"`

	// History enables the local run-history database.
	History bool `yaml:"history"`

	// GoBin overrides the go binary used to run suites.
	GoBin string `yaml:"go_bin"`

	Debug bool `yaml:"debug"`
}

// Flags holds CLI flag values plus markers for whether booleans were set
// explicitly, so unset flags don't clobber file or env settings.
type Flags struct {
	Expectations string
	Packages     []string
	Format       string
	Theme        string
	GoBin        string

	AllowUPass    bool
	AllowUPassSet bool
	NoColor       bool
	NoColorSet    bool
	History       bool
	HistorySet    bool
	Debug         bool
	DebugSet      bool
}

// Defaults returns the built-in configuration.
func Defaults() *App {
	return &App{
		Expectations: DefaultExpectations,
		Format:       DefaultFormat,
		Theme:        DefaultTheme,
		History:      true,
	}
}

// Load resolves the file layer: local .xpect.yaml, then the user config
// dir. A missing file is not an error; a malformed one is, because running
// a conformance suite against half-applied settings hides divergences.
func Load() (*App, error) {
	app := Defaults()

	path := configPath()
	if path == "" {
		return app, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return app, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var fileCfg fileApp
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	mergeFile(app, &fileCfg)

	if app.Debug || os.Getenv("XPECT_DEBUG") != "" {
		fmt.Fprintf(os.Stderr, "[DEBUG config] loaded %s\n", path)
	}
	return app, nil
}

// configPath finds the config file: local directory first, then the XDG
// user config dir.
func configPath() string {
	local := ".xpect.yaml"
	if _, err := os.Stat(local); err == nil {
		return local
	}
	configHome, err := os.UserConfigDir()
	if err != nil || configHome == "" || configHome == "/" {
		return ""
	}
	xdg := filepath.Join(configHome, "xpect", "config.yaml")
	if _, err := os.Stat(xdg); err == nil {
		return xdg
	}
	return ""
}

// fileApp mirrors App for YAML decoding, with pointers where absence and
// an explicit false must stay distinguishable.
type fileApp struct {
	Expectations string   `yaml:"expectations"`
	Packages     []string `yaml:"packages"`
	Format       string   `yaml:"format"`
	Theme        string   `yaml:"theme"`
	AllowUPass   *bool    `yaml:"allow_upass"`
	NoColor      *bool    `yaml:"no_color"`
	History      *bool    `yaml:"history"`
	GoBin        string   `yaml:"go_bin"`
	Debug        *bool    `yaml:"debug"`
}

func mergeFile(dst *App, src *fileApp) {
	if src.Expectations != "" {
		dst.Expectations = src.Expectations
	}
	if len(src.Packages) > 0 {
		dst.Packages = src.Packages
	}
	if src.Format != "" {
		dst.Format = src.Format
	}
	if src.Theme != "" {
		dst.Theme = src.Theme
	}
	if src.GoBin != "" {
		dst.GoBin = src.GoBin
	}
	if src.AllowUPass != nil {
		dst.AllowUPass = *src.AllowUPass
	}
	if src.NoColor != nil {
		dst.NoColor = *src.NoColor
	}
	if src.History != nil {
		dst.History = *src.History
	}
	if src.Debug != nil {
		dst.Debug = *src.Debug
	}
}

// ApplyEnv overlays environment variables: XPECT_DEBUG, XPECT_ALLOW_UPASS,
// XPECT_NO_HISTORY, and the conventional NO_COLOR / CI.
func ApplyEnv(app *App) {
	if os.Getenv("XPECT_DEBUG") != "" {
		app.Debug = true
	}
	if v := os.Getenv("XPECT_ALLOW_UPASS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			app.AllowUPass = b
		}
	}
	if os.Getenv("XPECT_NO_HISTORY") != "" {
		app.History = false
	}
	if os.Getenv("NO_COLOR") != "" {
		app.NoColor = true
	}
	if v := os.Getenv("CI"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil && b {
			app.NoColor = true
		}
	}
}

// ApplyFlags overlays explicitly set CLI flags, the highest-precedence
// layer.
func ApplyFlags(app *App, flags Flags) {
	if flags.Expectations != "" {
		app.Expectations = flags.Expectations
	}
	if len(flags.Packages) > 0 {
		app.Packages = flags.Packages
	}
	if flags.Format != "" {
		app.Format = flags.Format
	}
	if flags.Theme != "" {
		app.Theme = flags.Theme
	}
	if flags.GoBin != "" {
		app.GoBin = flags.GoBin
	}
	if flags.AllowUPassSet {
		app.AllowUPass = flags.AllowUPass
	}
	if flags.NoColorSet {
		app.NoColor = flags.NoColor
	}
	if flags.HistorySet {
		app.History = flags.History
	}
	if flags.DebugSet {
		app.Debug = flags.Debug
	}
}
