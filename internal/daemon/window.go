package daemon

import (
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/globalmenuproxy/globalmenuproxy/internal/binding"
	"github.com/globalmenuproxy/globalmenuproxy/internal/dbusmenu"
	"github.com/globalmenuproxy/globalmenuproxy/internal/gmenu"
	"github.com/globalmenuproxy/globalmenuproxy/internal/windowwatcher"
)

// addWindow constructs a WindowBinding and its DBusMenuServer for a
// newly reported window. Runs on the event loop.
func (d *Daemon) addWindow(id uint32, props windowwatcher.Props) {
	if !props.HasMenu() {
		d.logger.Debug("window has no menu to bind", "id", id)
		return
	}
	if _, exists := d.windows[id]; exists {
		d.logger.Warn("window already tracked, ignoring duplicate add", "id", id)
		return
	}

	var appMenu, menuBar *gmenu.Model
	if props.AppMenuObjectPath != "" {
		appMenu = gmenu.NewModel(props.UniqueBusName, props.AppMenuObjectPath, false,
			gmenu.NewDBusMenuTransport(d.conn, d.loop, props.UniqueBusName, dbus.ObjectPath(props.AppMenuObjectPath)),
			gmenu.WithStartIndex(d.cfg.StartIndex), gmenu.WithDeferWindow(d.cfg.DeferWindow))
		d.registerMenuRoute(props.UniqueBusName, props.AppMenuObjectPath, appMenu)
	}
	if props.MenuBarObjectPath != "" {
		menuBar = gmenu.NewModel(props.UniqueBusName, props.MenuBarObjectPath, true,
			gmenu.NewDBusMenuTransport(d.conn, d.loop, props.UniqueBusName, dbus.ObjectPath(props.MenuBarObjectPath)))
		d.registerMenuRoute(props.UniqueBusName, props.MenuBarObjectPath, menuBar)
	}

	var appActions, winActions, unityActions *gmenu.ActionGroup
	if props.ApplicationPath != "" {
		appActions = gmenu.NewActionGroup(
			gmenu.NewDBusActionTransport(d.conn, d.loop, props.UniqueBusName, dbus.ObjectPath(props.ApplicationPath)))
		d.registerActionRoute(props.UniqueBusName, props.ApplicationPath, appActions)
	}
	if props.WindowObjectPath != "" {
		winActions = gmenu.NewActionGroup(
			gmenu.NewDBusActionTransport(d.conn, d.loop, props.UniqueBusName, dbus.ObjectPath(props.WindowObjectPath)))
		d.registerActionRoute(props.UniqueBusName, props.WindowObjectPath, winActions)
	}
	if props.UnityObjectPath != "" {
		unityActions = gmenu.NewActionGroup(
			gmenu.NewDBusActionTransport(d.conn, d.loop, props.UniqueBusName, dbus.ObjectPath(props.UnityObjectPath)))
		d.registerActionRoute(props.UniqueBusName, props.UnityObjectPath, unityActions)
	}

	d.pathSeq++
	path := dbus.ObjectPath(fmt.Sprintf("/MenuBar/%d", d.pathSeq))

	b := binding.New(id, d.serviceName, string(path), appMenu, menuBar, appActions, winActions, unityActions)

	b.OnRegister = func() {
		if err := d.registrar.RegisterWindow(id, path); err != nil {
			d.logger.Warn("registrar registration failed", "id", id, "err", err)
		}
	}
	b.OnUnregister = func() {
		if err := d.registrar.UnregisterWindow(id); err != nil {
			d.logger.Debug("registrar unregistration failed", "id", id, "err", err)
		}
	}
	b.OnMetricsChanged = func() { d.refreshMetrics() }

	server, err := dbusmenu.Export(d.conn, path, b, d.loop)
	if err != nil {
		d.logger.Error("export DBusMenu object failed, dropping window", "id", id, "path", path, "err", err)
		return
	}

	d.windows[id] = &window{id: id, binding: b, server: server, path: path}
	d.metrics.TrackedWindows.Set(float64(len(d.windows)))

	b.Start()
	d.logger.Info("window bound", "id", id, "path", path)
}

// refreshMetrics recomputes the daemon's subscription/pending-reply
// gauges from current window state. Cheap enough to call on every
// transition that could move either count.
func (d *Daemon) refreshMetrics() {
	var activeSubs, pending int
	for _, w := range d.windows {
		activeSubs += w.binding.ActiveSubscriptionCount()
		pending += w.binding.PendingCount()
	}
	d.metrics.ActiveSubscriptions.Set(float64(activeSubs))
	d.metrics.PendingReplies.Set(float64(pending))
}

// removeWindow tears a window's binding down and releases its bus
// resources. Runs on the event loop.
func (d *Daemon) removeWindow(id uint32) {
	w, ok := d.windows[id]
	if !ok {
		return
	}
	delete(d.windows, id)
	d.metrics.TrackedWindows.Set(float64(len(d.windows)))

	w.binding.Close()
	if err := d.registrar.UnregisterWindow(id); err != nil {
		d.logger.Debug("registrar unregistration on removal failed", "id", id, "err", err)
	}

	if err := d.conn.Export(nil, w.path, "com.canonical.dbusmenu"); err != nil {
		d.logger.Debug("unexport DBusMenu object failed", "id", id, "path", w.path, "err", err)
	}

	d.unregisterWindowRoutes(w.binding)
	d.refreshMetrics()
	d.logger.Info("window unbound", "id", id)
}

func (d *Daemon) registerMenuRoute(sender, path string, m *gmenu.Model) {
	d.gmenuBySub[sender+"|"+path] = m
}

func (d *Daemon) registerActionRoute(sender, path string, g *gmenu.ActionGroup) {
	d.actionsBySub[sender+"|"+path] = g
}

// unregisterWindowRoutes removes every signal route pointing at any
// model or action group owned by b. It is O(routes) rather than
// tracked per-window, which is fine at the scale of a handful of
// concurrently open windows.
func (d *Daemon) unregisterWindowRoutes(b *binding.WindowBinding) {
	for key, m := range d.gmenuBySub {
		if m == b.AppMenu || m == b.MenuBar {
			delete(d.gmenuBySub, key)
		}
	}
	for key, g := range d.actionsBySub {
		if g == b.AppActions || g == b.WinActions || g == b.UnityActions {
			delete(d.actionsBySub, key)
		}
	}
}

func (d *Daemon) dispatchActionsChanged(key string, body []any) {
	group, ok := d.actionsBySub[key]
	if !ok {
		return
	}
	removed, enabledChanges, stateChanges, added, err := gmenu.DecodeActionsChanged(body)
	if err != nil {
		d.logger.Debug("malformed Actions.Changed signal", "err", err)
		return
	}
	group.ApplyChanged(removed, enabledChanges, stateChanges, added)
}
