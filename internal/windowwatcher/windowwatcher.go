// Package windowwatcher defines the collaborator interface a daemon
// uses to learn about top-level application windows. Deep window
// discovery (X11 property reads, atom interning) lives outside this
// module; Manual is the programmatic stand-in used for wiring and
// tests.
package windowwatcher

// Props is the subset of X11 window properties the daemon cares
// about, as the watcher would have read them before reporting the
// window.
type Props struct {
	UniqueBusName     string
	ApplicationPath   string
	UnityObjectPath   string
	WindowObjectPath  string
	AppMenuObjectPath string
	MenuBarObjectPath string
}

// HasMenu reports whether props exposes enough to bind a menu: a bus
// name to talk to, plus at least one of an app menu or menu bar path.
func (p Props) HasMenu() bool {
	return p.UniqueBusName != "" && (p.AppMenuObjectPath != "" || p.MenuBarObjectPath != "")
}

// Watcher is the collaborator interface a daemon depends on to learn
// about window lifecycle. A real implementation would back this with
// X11 property notifications; Manual backs it with direct calls.
type Watcher interface {
	// OnWindowAdded registers fn to be called for every window added
	// from this point on, including ones reported before fn was set if
	// the implementation buffers them (Manual does not).
	OnWindowAdded(fn func(id uint32, props Props))
	// OnWindowRemoved registers fn to be called when a window goes away.
	OnWindowRemoved(fn func(id uint32))
	// Close stops watching. Implementations that hold no resources may
	// treat this as a no-op.
	Close()
}

// Manual is a programmatic Watcher: callers invoke WindowAdded and
// WindowRemoved directly to drive it, rather than it discovering
// windows itself. This is the only Watcher this module provides; a
// real X11-backed implementation is out of scope.
type Manual struct {
	added   []func(id uint32, props Props)
	removed []func(id uint32)
}

// NewManual returns an empty Manual watcher.
func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) OnWindowAdded(fn func(id uint32, props Props)) {
	m.added = append(m.added, fn)
}

func (m *Manual) OnWindowRemoved(fn func(id uint32)) {
	m.removed = append(m.removed, fn)
}

func (m *Manual) Close() {}

// WindowAdded reports a new window to every registered handler, in
// registration order.
func (m *Manual) WindowAdded(id uint32, props Props) {
	for _, fn := range m.added {
		fn(id, props)
	}
}

// WindowRemoved reports a window going away to every registered
// handler, in registration order.
func (m *Manual) WindowRemoved(id uint32) {
	for _, fn := range m.removed {
		fn(id)
	}
}
