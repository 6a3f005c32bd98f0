package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	if cfg.Mode != ModeAuto {
		t.Fatalf("expected mode %q, got %q", ModeAuto, cfg.Mode)
	}
	if cfg.TitleBarHeight != 24 || cfg.BorderWidth != 4 {
		t.Fatalf("unexpected default metrics %d/%d", cfg.TitleBarHeight, cfg.BorderWidth)
	}
}

func TestLoadFromPath_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv(ModeEnv, "")
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BorderColor != DefaultConfig().BorderColor {
		t.Fatalf("expected default border color, got %q", cfg.BorderColor)
	}
}

func TestLoadFromPath_EmptyFileUsesDefaults(t *testing.T) {
	t.Setenv(ModeEnv, "")
	cfg, err := LoadFromPath(writeConfig(t, "# empty"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Library.Names) != 2 {
		t.Fatalf("expected default library names, got %v", cfg.Library.Names)
	}
}

func TestLoadFromPath_Overrides(t *testing.T) {
	t.Setenv(ModeEnv, "")
	path := writeConfig(t,
		"mode: client",
		"title_bar_height: 30",
		"border_width: 2",
		"border_color: \"#336699\"",
		"app_id: org.example.demo",
		"library:",
		"  names: [libdecor.so]",
		"  path: /opt/libdecor/lib",
	)
	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeClient || cfg.TitleBarHeight != 30 || cfg.BorderWidth != 2 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.AppID != "org.example.demo" || cfg.Library.Path != "/opt/libdecor/lib" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if len(cfg.Library.Names) != 1 || cfg.Library.Names[0] != "libdecor.so" {
		t.Fatalf("unexpected library names %v", cfg.Library.Names)
	}
}

func TestLoadFromPath_EnvOverridesMode(t *testing.T) {
	t.Setenv(ModeEnv, "SERVER")
	cfg, err := LoadFromPath(writeConfig(t, "mode: client"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeServer {
		t.Fatalf("expected mode %q, got %q", ModeServer, cfg.Mode)
	}
}

func TestLoadFromPath_UnknownFieldRejected(t *testing.T) {
	t.Setenv(ModeEnv, "")
	if _, err := LoadFromPath(writeConfig(t, "titlebar: 3")); err == nil {
		t.Fatalf("expected unknown field to fail")
	}
}

func TestLoadFromPath_ErrorsNameThePath(t *testing.T) {
	t.Setenv(ModeEnv, "")
	path := writeConfig(t, "mode: [")
	_, err := LoadFromPath(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse "+path) {
		t.Fatalf("expected a parse error naming %s, got %v", path, err)
	}

	dir := t.TempDir()
	_, err = LoadFromPath(dir)
	if err == nil || !strings.Contains(err.Error(), "failed to read "+dir) {
		t.Fatalf("expected a read error naming %s, got %v", dir, err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"mode", func(c *Config) { c.Mode = "fancy" }, "mode"},
		{"title bar", func(c *Config) { c.TitleBarHeight = -1 }, "title_bar_height"},
		{"border", func(c *Config) { c.BorderWidth = 0 }, "border_width"},
		{"color no hash", func(c *Config) { c.BorderColor = "FFFFFF" }, "border_color"},
		{"color bad digit", func(c *Config) { c.BorderColor = "#GG0000" }, "border_color"},
		{"library name", func(c *Config) { c.Library.Names = []string{" "} }, "library.names"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Path != tt.path {
				t.Fatalf("expected path %q, got %q", tt.path, verr.Path)
			}
		})
	}
}
