// Package dbusmenu exports a WindowBinding as a com.canonical.dbusmenu
// object on the session bus, following the teacher's export pattern
// of a method-set cast plus a hand-built introspect.Node and a
// prop.Properties block for the interface's static properties.
package dbusmenu

import (
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"

	"github.com/globalmenuproxy/globalmenuproxy/internal/binding"
	"github.com/globalmenuproxy/globalmenuproxy/internal/eventloop"
)

const interfaceName = "com.canonical.dbusmenu"

// menuLayout, menuProps, menuEvent and menuUpdate mirror the wire
// shapes GetLayout, GetGroupProperties, EventGroup and
// AboutToShowGroup marshal over D-Bus. Properties are plain
// map[string]any, not map[string]dbus.Variant: the codec wraps
// interface{}-typed a{sv} values in a variant automatically, same as
// the teacher's menuLayout/menuProps.
type menuLayout struct {
	ID         int32
	Properties map[string]any
	Children   []any
}

type menuProps struct {
	ID         int32
	Properties map[string]any
}

type menuEvent struct {
	ID        int32
	EventID   string
	Data      dbus.Variant
	Timestamp uint32
}

type menuUpdate struct {
	ID         int32
	NeedUpdate bool
}

func toMenuLayout(l binding.Layout) menuLayout {
	children := make([]any, 0, len(l.Children))
	for _, c := range l.Children {
		children = append(children, toMenuLayout(c))
	}
	return menuLayout{
		ID:         l.ID,
		Properties: l.Properties,
		Children:   children,
	}
}

func makeProp(v any) *prop.Prop {
	return &prop.Prop{Value: v, Writable: false, Emit: prop.EmitTrue}
}

func makeConstProp(v any) *prop.Prop {
	return &prop.Prop{Value: v, Writable: false, Emit: prop.EmitConst}
}

// Server is the exported com.canonical.dbusmenu object for one
// window. All method bodies delegate to the owning WindowBinding;
// Server itself holds no menu state. Every method body runs its
// binding access through loop, the same event loop WindowBinding's own
// doc comment requires all of its mutating methods run on, so a
// panel's incoming call can never race a Changed signal delivered via
// the daemon's own loop.Post.
type Server struct {
	conn    *dbus.Conn
	path    dbus.ObjectPath
	binding *binding.WindowBinding
	loop    *eventloop.Loop
	props   *prop.Properties
	logger  *slog.Logger
}

// menuMethods is the cast used for conn.Export/introspect.Methods,
// exactly as the teacher casts Menu to dbusmenu to scope the exported
// method set away from Server's other exported helpers.
type menuMethods Server

// Export publishes b as a com.canonical.dbusmenu object at path on
// conn. b's OnLayoutUpdated and OnItemsChanged hooks are wired to
// emit the corresponding D-Bus signals. loop must be the same loop
// that drives b and every other mutation of the daemon's engine state.
func Export(conn *dbus.Conn, path dbus.ObjectPath, b *binding.WindowBinding, loop *eventloop.Loop) (*Server, error) {
	s := &Server{
		conn:    conn,
		path:    path,
		binding: b,
		loop:    loop,
		logger:  slog.With("component", "dbusmenu", "path", string(path)),
	}

	if err := conn.Export((*menuMethods)(s), path, interfaceName); err != nil {
		return nil, fmt.Errorf("export %v methods: %w", interfaceName, err)
	}

	if err := s.exportProps(); err != nil {
		return nil, fmt.Errorf("export %v properties: %w", interfaceName, err)
	}

	if err := s.exportIntrospect(); err != nil {
		return nil, fmt.Errorf("export introspection data: %w", err)
	}

	b.OnLayoutUpdated = func(rev uint32, parentID int32) { s.emitLayoutUpdated(rev, parentID) }
	b.OnItemsChanged = func(dirty []int32) { s.emitItemsPropertiesUpdated(dirty) }

	return s, nil
}

func (s *Server) exportProps() error {
	m := prop.Map{
		interfaceName: map[string]*prop.Prop{
			"Version":       makeConstProp(uint32(4)),
			"TextDirection": makeProp("ltr"),
			"Status":        makeProp("normal"),
			"IconThemePath": makeProp([]string(nil)),
		},
	}

	props, err := prop.Export(s.conn, s.path, m)
	if err != nil {
		return err
	}
	s.props = props
	return nil
}

func (s *Server) exportIntrospect() error {
	node := introspect.Node{
		Name: string(s.path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name:       interfaceName,
				Methods:    introspect.Methods((*menuMethods)(s)),
				Properties: s.props.Introspection(interfaceName),
				Signals: []introspect.Signal{
					{Name: "ItemsPropertiesUpdated", Args: []introspect.Arg{
						{Name: "updatedProps", Type: "a(ia{sv})", Direction: "out"},
						{Name: "removedProps", Type: "a(ias)", Direction: "out"},
					}},
					{Name: "LayoutUpdated", Args: []introspect.Arg{
						{Name: "revision", Type: "u", Direction: "out"},
						{Name: "parent", Type: "i", Direction: "out"},
					}},
					{Name: "ItemActivationRequested", Args: []introspect.Arg{
						{Name: "id", Type: "i", Direction: "out"},
						{Name: "timestamp", Type: "u", Direction: "out"},
					}},
				},
			},
		},
	}

	return s.conn.Export(introspect.NewIntrospectable(&node), s.path, "org.freedesktop.DBus.Introspectable")
}

func (s *Server) emitLayoutUpdated(rev uint32, parentID int32) {
	if err := s.conn.Emit(s.path, interfaceName+".LayoutUpdated", rev, parentID); err != nil {
		s.logger.Warn("emit LayoutUpdated failed", "err", err)
	}
}

func (s *Server) emitItemsPropertiesUpdated(dirty []int32) {
	all := s.binding.GetGroupProperties(dirty, nil)

	updated := make([]menuProps, 0, len(dirty))
	for _, id := range dirty {
		props, ok := all[id]
		if !ok {
			continue
		}
		updated = append(updated, menuProps{ID: id, Properties: props})
	}
	if len(updated) == 0 {
		return
	}

	if err := s.conn.Emit(s.path, interfaceName+".ItemsPropertiesUpdated", updated, []menuProps(nil)); err != nil {
		s.logger.Warn("emit ItemsPropertiesUpdated failed", "err", err)
	}
}

func (m *menuMethods) b() *binding.WindowBinding { return (*Server)(m).binding }

// GetLayout may reply immediately or, if parentID names a subscription
// that has not yet resolved, only once that subscription's Start
// completes — which itself runs as a later, separate job on the same
// loop. So only the call into the binding is posted; the wait for its
// eventual reply happens on this (the D-Bus dispatch) goroutine, never
// inside a loop job, or a deferred reply would deadlock the loop
// waiting on itself.
func (m *menuMethods) GetLayout(parentID int32, recursionDepth int, propertyNames []string) (revision uint32, layout menuLayout, derr *dbus.Error) {
	s := (*Server)(m)
	s.logger.Debug("GetLayout", "parentID", parentID, "recursionDepth", recursionDepth)

	done := make(chan struct{})
	s.loop.Post(func() {
		s.b().GetLayout(parentID, recursionDepth, propertyNames, func(rev uint32, l binding.Layout, ok bool) {
			revision = rev
			if ok {
				layout = toMenuLayout(l)
			}
			close(done)
		})
	})
	<-done
	return revision, layout, nil
}

func (m *menuMethods) GetGroupProperties(idList []int32, propertyNames []string) ([]menuProps, *dbus.Error) {
	s := (*Server)(m)
	var out []menuProps
	s.loop.PostWait(func() {
		result := s.b().GetGroupProperties(idList, propertyNames)
		out = make([]menuProps, 0, len(result))
		for id, props := range result {
			out = append(out, menuProps{ID: id, Properties: props})
		}
	})
	return out, nil
}

func (m *menuMethods) GetProperty(id int32, name string) (dbus.Variant, *dbus.Error) {
	s := (*Server)(m)
	var v any
	var ok bool
	s.loop.PostWait(func() {
		v, ok = s.b().GetProperty(id, name)
	})
	if !ok {
		return dbus.Variant{}, dbus.MakeFailedError(fmt.Errorf("property %q not found on item %d", name, id))
	}
	return dbus.MakeVariant(v), nil
}

func (m *menuMethods) Event(id int32, eventID string, data dbus.Variant, timestamp uint32) *dbus.Error {
	s := (*Server)(m)
	s.loop.PostWait(func() {
		s.b().Event(id, eventID, data.Value(), timestamp)
	})
	return nil
}

func (m *menuMethods) EventGroup(events []menuEvent) ([]int32, *dbus.Error) {
	s := (*Server)(m)
	s.loop.PostWait(func() {
		for _, e := range events {
			s.b().Event(e.ID, e.EventID, e.Data.Value(), e.Timestamp)
		}
	})
	return nil, nil
}

func (m *menuMethods) AboutToShow(id int32) (bool, *dbus.Error) {
	// All preparation is proactive: subscriptions happen as soon as a
	// GetLayout references them, not in response to AboutToShow.
	return false, nil
}

func (m *menuMethods) AboutToShowGroup(idList []int32) ([]menuUpdate, []int32, *dbus.Error) {
	return nil, nil, nil
}
