// Package registrar is a thin client for com.canonical.AppMenu.Registrar,
// the well-known service a window manager runs to learn which windows
// have an exported DBusMenu object to show in a global menu bar.
package registrar

import (
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
)

// DefaultServiceName and DefaultObjectPath are where the registrar
// usually lives; callers that need a different address (testing
// against a stand-in registrar, or a window manager using a
// nonstandard bus name) can override via New's arguments.
const (
	DefaultServiceName = "com.canonical.AppMenu.Registrar"
	DefaultObjectPath  = "/com/canonical/AppMenu/Registrar"
	interfName         = "com.canonical.AppMenu.Registrar"
)

// caller is the slice of dbus.BusObject that registrar actually uses,
// kept narrow so it can be faked in tests without a session bus.
type caller interface {
	Call(method string, flags dbus.Flags, args ...any) *dbus.Call
}

// Client talks to a running Registrar over conn. Failures are logged
// and returned as wrapped errors, never retried; callers only log
// them, since a window manager that isn't running a registrar (most of
// them) is not a fatal condition.
type Client struct {
	conn   *dbus.Conn
	obj    caller
	logger *slog.Logger
}

// New wraps conn with a Registrar client bound to service at path.
func New(conn *dbus.Conn, service string, path dbus.ObjectPath) *Client {
	return &Client{
		conn:   conn,
		obj:    conn.Object(service, path),
		logger: slog.With("component", "registrar"),
	}
}

// call issues a Registrar method and logs failures, mirroring the
// teacher's dbusCall wrapper.
func (c *Client) call(method string, args ...any) *dbus.Call {
	call := c.obj.Call(interfName+"."+method, 0, args...)
	if call.Err != nil {
		c.logger.Warn(
			"registrar call failed",
			"method", method,
			"args", args,
			"err", call.Err,
		)
	}
	return call
}

// RegisterWindow tells the registrar that window wid's global menu is
// exported at path on this client's own connection; the registrar
// learns the owning service name from the D-Bus message sender.
// Failures are logged, not retried: a window with no registrar to
// tell still works locally, it simply isn't picked up by a global
// menu bar.
func (c *Client) RegisterWindow(wid uint32, path dbus.ObjectPath) error {
	call := c.call("RegisterWindow", wid, path)
	if call.Err != nil {
		return fmt.Errorf("register window %d at %v: %w", wid, path, call.Err)
	}
	c.logger.Debug("registered window", "wid", wid, "path", path)
	return nil
}

// UnregisterWindow tells the registrar that window wid no longer has
// a global menu to show.
func (c *Client) UnregisterWindow(wid uint32) error {
	call := c.call("UnregisterWindow", wid)
	if call.Err != nil {
		return fmt.Errorf("unregister window %d: %w", wid, call.Err)
	}
	c.logger.Debug("unregistered window", "wid", wid)
	return nil
}
