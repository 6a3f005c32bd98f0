package wldecor

import (
	"log"

	"github.com/pkg/errors"
)

// Globals holds the bound protocol globals a client needs to create and
// decorate windows. Optional globals are nil when not advertised.
type Globals struct {
	Compositor        *Compositor
	Subcompositor     *Subcompositor
	Shm               *Shm
	Viewporter        *Viewporter
	WmBase            *WmBase
	DecorationManager *DecorationManager
	Seat              *Seat
}

type globalBinding struct {
	iface   string
	version uint32
	bind    func(ctx *Context) Proxy
}

// BindGlobals does a roundtrip to collect the advertised globals and binds the
// ones it knows, then a second roundtrip so initial events (shm formats, seat
// capabilities) have arrived when it returns.
func BindGlobals(d *Display) (*Globals, error) {
	if err := d.Roundtrip(); err != nil {
		return nil, errors.Wrap(err, "registry roundtrip")
	}

	g := &Globals{}
	ctx := d.Context()
	bindings := []globalBinding{
		{"wl_compositor", 4, func(ctx *Context) Proxy { g.Compositor = NewCompositor(ctx); return g.Compositor }},
		{"wl_subcompositor", 1, func(ctx *Context) Proxy { g.Subcompositor = NewSubcompositor(ctx); return g.Subcompositor }},
		{"wl_shm", 1, func(ctx *Context) Proxy { g.Shm = NewShm(ctx); return g.Shm }},
		{"wp_viewporter", 1, func(ctx *Context) Proxy { g.Viewporter = NewViewporter(ctx); return g.Viewporter }},
		{"xdg_wm_base", 1, func(ctx *Context) Proxy { g.WmBase = NewWmBase(ctx); return g.WmBase }},
		{"zxdg_decoration_manager_v1", 1, func(ctx *Context) Proxy { g.DecorationManager = NewDecorationManager(ctx); return g.DecorationManager }},
		{"wl_seat", 5, func(ctx *Context) Proxy { g.Seat = NewSeat(ctx); return g.Seat }},
	}

	for _, b := range bindings {
		global, ok := d.Registry().FindGlobal(b.iface)
		if !ok {
			log.Printf("wldecor: global %s not advertised", b.iface)
			continue
		}
		version := b.version
		if global.Version < version {
			version = global.Version
		}
		if err := d.Registry().Bind(global.Name, b.iface, version, b.bind(ctx)); err != nil {
			return nil, errors.Wrapf(err, "bind %s", b.iface)
		}
	}

	if g.Compositor == nil {
		return nil, errors.New("compositor does not advertise wl_compositor")
	}

	if err := d.Roundtrip(); err != nil {
		return nil, errors.Wrap(err, "bind roundtrip")
	}
	return g, nil
}
