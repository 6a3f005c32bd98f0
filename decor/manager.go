package decor

import (
	"log"
	"strconv"
	"strings"

	"github.com/bnema/wldecor/config"
	"github.com/bnema/wldecor/libdecor"
	"github.com/pkg/errors"
)

// Options tune selection and the self-drawn tier.
type Options struct {
	// Start is the first tier tried. Lower-priority tiers are still tried after it.
	Start          Type
	TitleBarHeight int32
	BorderWidth    int32
	// BorderColor is an ARGB8888 value.
	BorderColor uint32
	AppID       string
}

// DefaultOptions mirror config.DefaultConfig.
func DefaultOptions() Options {
	opts, _ := OptionsFromConfig(config.DefaultConfig())
	return opts
}

// OptionsFromConfig converts a validated configuration.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	color, err := ParseColor(cfg.BorderColor)
	if err != nil {
		return Options{}, err
	}
	opts := Options{
		TitleBarHeight: cfg.TitleBarHeight,
		BorderWidth:    cfg.BorderWidth,
		BorderColor:    color,
		AppID:          cfg.AppID,
	}
	switch cfg.Mode {
	case config.ModeAuto, config.ModeNative:
		opts.Start = NativeHelper
	case config.ModeServer:
		opts.Start = CompositorDrawn
	case config.ModeClient:
		opts.Start = SelfDrawn
	case config.ModeNone:
		opts.Start = Disabled
	default:
		return Options{}, errors.Errorf("decor: unknown mode %q", cfg.Mode)
	}
	return opts, nil
}

// ParseColor parses #RRGGBB (opaque) or #AARRGGBB into ARGB8888.
func ParseColor(s string) (uint32, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 && len(hex) != 8 {
		return 0, errors.Errorf("decor: invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "decor: invalid color %q", s)
	}
	if len(hex) == 6 {
		v |= 0xFF000000
	}
	return uint32(v), nil
}

// Manager selects decoration strategies for the windows of one application.
// It owns the libdecor context shared by all NativeHelper windows.
type Manager struct {
	globals Globals
	loader  *libdecor.Loader
	router  InputRouter
	opts    Options

	helper *helperContext
	closed bool
}

// NewManager creates a manager. loader and router may be nil. The manager
// holds the loader until Close and its last native frame are both done.
func NewManager(globals Globals, loader *libdecor.Loader, router InputRouter, opts Options) *Manager {
	if loader != nil {
		loader.Retain()
	}
	return &Manager{
		globals: globals,
		loader:  loader,
		router:  router,
		opts:    opts,
	}
}

// Select binds a strategy to win, trying tiers in priority order and keeping
// the first that succeeds. Tier failures are logged, never returned; the
// only error is a window without a main surface.
func (m *Manager) Select(win Window) (Strategy, error) {
	if win == nil || win.MainSurface() == nil {
		return nil, ErrNoMainSurface
	}

	for tier := m.opts.Start; tier < Disabled; tier++ {
		s, err := m.try(tier, win)
		if err != nil {
			log.Printf("decor: window %d: %s tier skipped: %v", win.ID(), tier, err)
			continue
		}
		log.Printf("decor: window %d: using %s decorations", win.ID(), tier)
		return s, nil
	}
	log.Printf("decor: window %d: using %s decorations", win.ID(), Disabled)
	return disabledStrategy{}, nil
}

func (m *Manager) try(tier Type, win Window) (Strategy, error) {
	switch tier {
	case NativeHelper:
		if m.loader == nil {
			return nil, libdecor.ErrUnavailable
		}
		if m.closed {
			return nil, errors.Wrap(libdecor.ErrUnavailable, "manager closed")
		}
		if !m.loader.Load() {
			return nil, m.loader.Err()
		}
		return newNativeStrategy(m, win)
	case CompositorDrawn:
		return newServerStrategy(m.globals.DecorationManager, win)
	case SelfDrawn:
		return newSelfStrategy(m.globals, win, m.router, m.opts)
	}
	return disabledStrategy{}, nil
}

// Dispatch pumps the libdecor context, if one is live, without blocking.
// Call it once per loop iteration before the display is flushed.
func (m *Manager) Dispatch() error {
	if m.helper == nil {
		return nil
	}
	if ret := m.helper.syms.Dispatch(m.helper.handle, 0); ret < 0 {
		return errors.New("decor: libdecor_dispatch failed")
	}
	return nil
}

// Close releases the library. When native frames are still alive the
// release waits for the last of them to be destroyed; until then they keep
// working. New windows no longer get the native tier.
func (m *Manager) Close() {
	if m.closed {
		return
	}
	m.closed = true
	if m.helper != nil {
		log.Printf("decor: closing with %d native frames still alive, library kept until they are destroyed", m.helper.refs)
		return
	}
	m.releaseLoader()
}

func (m *Manager) releaseLoader() {
	if m.loader != nil {
		m.loader.Release()
	}
}
