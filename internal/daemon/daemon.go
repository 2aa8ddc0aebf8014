// Package daemon wires WindowWatcher, WindowBinding, DBusMenuServer,
// and the registrar client into a running process: it owns the
// session bus connection, the shared event loop, and the per-window
// lifecycle.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/godbus/dbus/v5"

	"github.com/globalmenuproxy/globalmenuproxy/internal/binding"
	"github.com/globalmenuproxy/globalmenuproxy/internal/config"
	"github.com/globalmenuproxy/globalmenuproxy/internal/dbusmenu"
	"github.com/globalmenuproxy/globalmenuproxy/internal/eventloop"
	"github.com/globalmenuproxy/globalmenuproxy/internal/gmenu"
	"github.com/globalmenuproxy/globalmenuproxy/internal/gtksettings"
	"github.com/globalmenuproxy/globalmenuproxy/internal/metrics"
	"github.com/globalmenuproxy/globalmenuproxy/internal/registrar"
	"github.com/globalmenuproxy/globalmenuproxy/internal/windowwatcher"
)

var idCounter uint64

// getName returns a unique candidate well-known name for this daemon
// instance, mirroring the teacher's name.go pattern.
func getName() string {
	n := atomic.AddUint64(&idCounter, 1)
	return fmt.Sprintf("org.gmenuproxy.Daemon-%d-%d", os.Getpid(), n)
}

// window is everything the daemon tracks for one managed top-level
// window.
type window struct {
	id      uint32
	binding *binding.WindowBinding
	server  *dbusmenu.Server
	path    dbus.ObjectPath
}

// Daemon is the running process: one session bus connection, one
// event loop, and the set of currently managed windows.
type Daemon struct {
	cfg    config.Config
	conn   *dbus.Conn
	loop   *eventloop.Loop
	watcher windowwatcher.Watcher
	registrar *registrar.Client
	metrics   *metrics.Metrics
	logger    *slog.Logger

	serviceName string
	gtkrcPath   string

	windows      map[uint32]*window
	pathSeq      uint64
	gmenuBySub   map[string]*gmenu.Model       // keyed by sender+path, for org.gtk.Menus.Changed routing
	actionsBySub map[string]*gmenu.ActionGroup // keyed by sender+path, for org.gtk.Actions.Changed routing
}

// New connects to the session bus, requests a well-known name, and
// wires watcher into window lifecycle management. Bus signals and
// watcher events are routed onto the event loop from the moment New
// returns; Run adds the metrics listener and blocks until shutdown.
func New(cfg config.Config, watcher windowwatcher.Watcher) (*Daemon, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}

	name := getName()
	reply, err := conn.RequestName(name, 0)
	if err != nil || reply != dbus.RequestNameReplyPrimaryOwner {
		slog.Warn("request name failed, falling back to unique name", "name", name, "reply", reply, "err", err)
		name = conn.Names()[0]
	}

	gtkrcPath, err := gtksettings.Path()
	if err != nil {
		slog.Warn("could not resolve gtkrc path", "err", err)
	}

	d := &Daemon{
		cfg:         cfg,
		conn:        conn,
		loop:        eventloop.New(64),
		watcher:     watcher,
		registrar:   registrar.New(conn, cfg.RegistrarService, dbus.ObjectPath(cfg.RegistrarPath)),
		metrics:     metrics.New(),
		logger:      slog.With("component", "daemon"),
		serviceName: name,
		gtkrcPath:   gtkrcPath,
		windows:      make(map[uint32]*window),
		gmenuBySub:   make(map[string]*gmenu.Model),
		actionsBySub: make(map[string]*gmenu.ActionGroup),
	}

	watcher.OnWindowAdded(func(id uint32, props windowwatcher.Props) { d.loop.Post(func() { d.addWindow(id, props) }) })
	watcher.OnWindowRemoved(func(id uint32) { d.loop.Post(func() { d.removeWindow(id) }) })

	d.watchSignals()

	if d.gtkrcPath != "" {
		if err := gtksettings.Enable(d.gtkrcPath); err != nil {
			d.logger.Warn("enable appmenu-gtk-module failed", "err", err)
		}
	}

	return d, nil
}

// ServiceName returns the well-known (or fallback unique) bus name
// this daemon instance acquired.
func (d *Daemon) ServiceName() string { return d.serviceName }

// watchSignals subscribes to org.gtk.Menus.Changed and
// org.gtk.Actions.Changed across the whole bus and routes each
// arriving signal to the model/action-group registered for its
// (sender, path).
func (d *Daemon) watchSignals() {
	d.conn.AddMatchSignal(dbus.WithMatchInterface("org.gtk.Menus"), dbus.WithMatchMember("Changed"))
	d.conn.AddMatchSignal(dbus.WithMatchInterface("org.gtk.Actions"), dbus.WithMatchMember("Changed"))

	ch := make(chan *dbus.Signal, 32)
	d.conn.Signal(ch)

	go func() {
		for sig := range ch {
			sig := sig
			d.loop.Post(func() { d.dispatchSignal(sig) })
		}
	}()
}

func (d *Daemon) dispatchSignal(sig *dbus.Signal) {
	key := string(sig.Sender) + "|" + string(sig.Path)
	switch sig.Name {
	case "org.gtk.Menus.Changed":
		model, ok := d.gmenuBySub[key]
		if !ok {
			return
		}
		changes, err := gmenu.DecodeChanged(sig.Body)
		if err != nil {
			d.logger.Debug("malformed Changed signal", "err", err)
			return
		}
		model.ApplyChanges(changes)
	case "org.gtk.Actions.Changed":
		// Action groups are looked up the same way but stored in a
		// parallel registry; see addWindow for registration.
		d.dispatchActionsChanged(key, sig.Body)
	}
}

// Run blocks until ctx is canceled or a termination signal arrives,
// then tears down every window and returns.
func (d *Daemon) Run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metricsErr := make(chan error, 1)
	go func() { metricsErr <- d.metrics.Server(ctx, d.cfg.MetricsAddr) }()

	select {
	case <-ctx.Done():
	case <-sigCh:
	}

	d.shutdown()
	cancel()

	if err := <-metricsErr; err != nil {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func (d *Daemon) shutdown() {
	d.loop.PostWait(func() {
		for id := range d.windows {
			d.removeWindow(id)
		}
	})
	if d.gtkrcPath != "" {
		if err := gtksettings.Disable(d.gtkrcPath); err != nil {
			d.logger.Warn("disable appmenu-gtk-module failed", "err", err)
		}
	}
	d.watcher.Close()
	d.loop.Close()
}
