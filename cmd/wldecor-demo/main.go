// Command wldecor-demo opens one toplevel window on a Wayland compositor and
// decorates it with the best tier the session supports.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bnema/wldecor"
	"github.com/bnema/wldecor/config"
	"github.com/bnema/wldecor/decor"
	"github.com/bnema/wldecor/libdecor"
	"github.com/pkg/errors"
)

const contentColor = 0xFF303440

func main() {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	fs := flag.NewFlagSet("wldecor-demo", flag.ExitOnError)
	configPath := fs.String("config", "", "config file (default $XDG_CONFIG_HOME/wldecor/config.yaml)")
	mode := fs.String("mode", "", "decoration mode: auto, native, server, client, none")
	title := fs.String("title", "wldecor demo", "window title")
	width := fs.Int("width", 640, "initial content width")
	height := fs.Int("height", 400, "initial content height")
	_ = fs.Parse(os.Args[1:])

	cfg, err := loadConfig(*configPath, *mode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	opts, err := decor.OptionsFromConfig(cfg)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, *title, int32(*width), int32(*height)); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("wldecor-demo: %v", err)
	}
}

func loadConfig(path, mode string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path == "" {
		cfg, err = config.Load()
	} else {
		cfg, err = config.LoadFromPath(path)
	}
	if err != nil {
		return nil, err
	}
	if mode != "" {
		cfg.Mode = config.Mode(mode)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config, opts decor.Options, title string, width, height int32) error {
	display, err := wldecor.Connect("")
	if err != nil {
		return err
	}
	defer display.Close()

	globals, err := wldecor.BindGlobals(display)
	if err != nil {
		return err
	}
	if globals.WmBase == nil || globals.Shm == nil {
		return errors.New("compositor does not support xdg_wm_base and wl_shm")
	}

	win, err := newDemoWindow(globals, 1, title, opts.AppID, width, height)
	if err != nil {
		return err
	}
	defer win.destroy()

	router := decor.NewPointerRouter(globals.Seat, func(id uint64) decor.Window {
		if id == win.ID() {
			return win
		}
		return nil
	}, opts)
	if globals.Seat != nil && globals.Seat.Capabilities()&wldecor.SeatCapabilityPointer != 0 {
		pointer, err := globals.Seat.GetPointer()
		if err != nil {
			return err
		}
		pointer.SetListener(router)
		defer pointer.Release()
	}

	loader := libdecor.Shared(
		libdecor.WithNames(cfg.Library.Names...),
		libdecor.WithSearchDir(cfg.Library.Path),
	)
	mgr := decor.NewManager(decor.GlobalsFrom(globals, 0), loader, router, opts)
	defer mgr.Close()

	strategy, err := mgr.Select(win)
	if err != nil {
		return err
	}
	defer strategy.Destroy()
	win.strategy = strategy
	strategy.SetTitle(title)

	// Initial commit without a buffer asks for the first configure.
	if err := win.surface.Commit(); err != nil {
		return err
	}

	loop := decor.NewEventLoop(display, mgr, 100*time.Millisecond)
	return loop.Run(ctx, func() bool { return win.closed })
}

// demoWindow is a toplevel filled with a solid color.
type demoWindow struct {
	id       uint64
	globals  *wldecor.Globals
	surface  *wldecor.Surface
	xdg      *wldecor.XdgSurface
	toplevel *wldecor.Toplevel
	buffer   *wldecor.Buffer
	strategy decor.Strategy

	width, height      int32
	pendingW, pendingH int32
	closed             bool
}

func newDemoWindow(g *wldecor.Globals, id uint64, title, appID string, width, height int32) (*demoWindow, error) {
	w := &demoWindow{id: id, globals: g, width: width, height: height}

	var err error
	if w.surface, err = g.Compositor.CreateSurface(); err != nil {
		return nil, err
	}
	if w.xdg, err = g.WmBase.GetXdgSurface(w.surface); err != nil {
		return nil, err
	}
	if w.toplevel, err = w.xdg.GetToplevel(); err != nil {
		return nil, err
	}
	_ = w.toplevel.SetTitle(title)
	if appID != "" {
		_ = w.toplevel.SetAppID(appID)
	}

	w.toplevel.OnConfigure = func(width, height int32, _ []uint32) {
		w.pendingW, w.pendingH = width, height
	}
	w.toplevel.OnClose = w.HandleCloseRequest
	w.xdg.OnConfigure = func(uint32) {
		width, height := w.width, w.height
		if w.pendingW > 0 && w.pendingH > 0 {
			width, height = w.pendingW, w.pendingH
		}
		w.HandleResize(width, height)
		if w.strategy != nil {
			w.strategy.Resize(width, height)
		}
	}
	return w, nil
}

func (w *demoWindow) ID() uint64                    { return w.id }
func (w *demoWindow) MainSurface() *wldecor.Surface { return w.surface }
func (w *demoWindow) Toplevel() *wldecor.Toplevel   { return w.toplevel }
func (w *demoWindow) Size() (int32, int32)          { return w.width, w.height }
func (w *demoWindow) MinSize() (int32, int32)       { return 120, 80 }
func (w *demoWindow) HandleCloseRequest()           { w.closed = true }

// HandleResize redraws the content at the new size and commits it.
func (w *demoWindow) HandleResize(width, height int32) {
	if width <= 0 || height <= 0 {
		return
	}
	w.width, w.height = width, height
	if err := w.draw(); err != nil {
		log.Printf("wldecor-demo: draw: %v", err)
		return
	}
	_ = w.surface.Commit()
}

func (w *demoWindow) draw() error {
	stride := w.width * 4
	size := int(stride * w.height)
	mem, err := wldecor.NewSharedMemory(size)
	if err != nil {
		return err
	}
	defer mem.Close()

	data := mem.Data()
	for i := 0; i+4 <= len(data); i += 4 {
		binary.LittleEndian.PutUint32(data[i:], contentColor)
	}

	pool, err := w.globals.Shm.CreatePool(mem.FD(), int32(size))
	if err != nil {
		return err
	}
	defer pool.Destroy()

	buffer, err := pool.CreateBuffer(0, w.width, w.height, stride, wldecor.FormatXRGB8888)
	if err != nil {
		return err
	}
	if err := w.surface.Attach(buffer, 0, 0); err != nil {
		return err
	}
	if err := w.surface.DamageBuffer(0, 0, w.width, w.height); err != nil {
		return err
	}
	if err := w.setOpaque(); err != nil {
		return err
	}
	if w.buffer != nil {
		_ = w.buffer.Destroy()
	}
	w.buffer = buffer
	return nil
}

// setOpaque marks the whole content as opaque; XRGB has no alpha.
func (w *demoWindow) setOpaque() error {
	region, err := w.globals.Compositor.CreateRegion()
	if err != nil {
		return err
	}
	defer region.Destroy()
	if err := region.Add(0, 0, w.width, w.height); err != nil {
		return err
	}
	return w.surface.SetOpaqueRegion(region)
}

func (w *demoWindow) destroy() {
	if w.buffer != nil {
		_ = w.buffer.Destroy()
	}
	_ = w.toplevel.Destroy()
	_ = w.xdg.Destroy()
	_ = w.surface.Destroy()
}
