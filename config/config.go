// Package config loads the decoration settings of a wldecor client.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Mode names the first decoration tier tried.
type Mode string

const (
	ModeAuto   Mode = "auto"   // Best available, starting with libdecor.
	ModeNative Mode = "native" // libdecor, same order as auto.
	ModeServer Mode = "server" // Start at compositor-drawn.
	ModeClient Mode = "client" // Start at self-drawn.
	ModeNone   Mode = "none"   // No decorations.
)

// ModeEnv overrides the mode of any loaded configuration.
const ModeEnv = "WLDECOR_MODE"

// LibraryConfig locates libdecor.
type LibraryConfig struct {
	// Names are tried in order with the dynamic loader's search path.
	Names []string `yaml:"names,omitempty"`
	// Path is a directory searched before the loader's path. Empty means none.
	Path string `yaml:"path,omitempty"`
}

// Config is the decoration configuration.
type Config struct {
	Mode           Mode          `yaml:"mode"`
	Library        LibraryConfig `yaml:"library"`
	TitleBarHeight int32         `yaml:"title_bar_height"`
	BorderWidth    int32         `yaml:"border_width"`
	BorderColor    string        `yaml:"border_color"` // #RRGGBB or #AARRGGBB
	AppID          string        `yaml:"app_id,omitempty"`
}

// ValidationError reports the first invalid field of a config.
type ValidationError struct {
	Path string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Mode: ModeAuto,
		Library: LibraryConfig{
			Names: []string{"libdecor-0.so.0", "libdecor-0.so"},
		},
		TitleBarHeight: 24,
		BorderWidth:    4,
		BorderColor:    "#FFE0E0E0",
	}
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/wldecor/config.yaml, or the same
// file under ~/.config when XDG_CONFIG_HOME is unset.
func DefaultConfigPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "wldecor", "config.yaml"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(homeDir, ".config", "wldecor", "config.yaml"), nil
}

// Load reads the configuration from the standard location.
func Load() (*Config, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads path over the defaults. A missing file yields the
// defaults. The mode environment override is applied last, then the result
// is validated.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decodeStrictYAML(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s", path)
		}
	case os.IsNotExist(err):
	default:
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}

	if mode := strings.TrimSpace(os.Getenv(ModeEnv)); mode != "" {
		cfg.Mode = Mode(strings.ToLower(mode))
	}
	if len(cfg.Library.Names) == 0 {
		cfg.Library.Names = DefaultConfig().Library.Names
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeStrictYAML(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return nil
}

// Validate checks every field and returns a *ValidationError naming the
// first one that is wrong.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeAuto, ModeNative, ModeServer, ModeClient, ModeNone:
	default:
		return &ValidationError{Path: "mode", Err: errors.New("mode must be one of: auto, native, server, client, none")}
	}
	for _, name := range c.Library.Names {
		if strings.TrimSpace(name) == "" {
			return &ValidationError{Path: "library.names", Err: errors.New("library names must not be empty")}
		}
	}
	if c.TitleBarHeight <= 0 {
		return &ValidationError{Path: "title_bar_height", Err: errors.New("title_bar_height must be > 0")}
	}
	if c.BorderWidth <= 0 {
		return &ValidationError{Path: "border_width", Err: errors.New("border_width must be > 0")}
	}
	if !validColor(c.BorderColor) {
		return &ValidationError{Path: "border_color", Err: errors.New("border_color must be #RRGGBB or #AARRGGBB")}
	}
	return nil
}

func validColor(s string) bool {
	hex, ok := strings.CutPrefix(s, "#")
	if !ok || (len(hex) != 6 && len(hex) != 8) {
		return false
	}
	for _, r := range hex {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
