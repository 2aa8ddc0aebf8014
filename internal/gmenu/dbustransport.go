package gmenu

import (
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/globalmenuproxy/globalmenuproxy/internal/eventloop"
)

// wireItem is one org.gtk.Menus item exactly as it arrives over
// a{sv}: a dict from attribute name to variant.
type wireItem map[string]dbus.Variant

// wireSection is one entry of org.gtk.Menus.Start's a(uuaa{sv}) reply:
// subscription id, section index, and its items.
type wireSection struct {
	Sub     uint32
	Section uint32
	Items   []wireItem
}

// wireChange is one entry of an org.gtk.Menus Changed signal's
// a(uuuuaa{sv}) payload.
type wireChange struct {
	Sub         uint32
	Section     uint32
	Position    uint32
	RemoveCount uint32
	Insert      []wireItem
}

// wireActionState is one value of org.gtk.Actions.DescribeAll's
// a{s(bgav)} reply: enabled, the parameter's type signature (empty if
// the action takes no parameter), and a 0-or-1-element array holding
// the current state.
type wireActionState struct {
	Enabled       bool
	ParameterType dbus.Signature
	State         []dbus.Variant
}

func toRef(v any) (Ref, bool) {
	switch t := v.(type) {
	case []any:
		if len(t) != 2 {
			return Ref{}, false
		}
		sub, ok1 := toInt(t[0])
		sec, ok2 := toInt(t[1])
		if !ok1 || !ok2 {
			return Ref{}, false
		}
		return Ref{Sub: sub, Section: sec}, true
	case [2]uint32:
		return Ref{Sub: int(t[0]), Section: int(t[1])}, true
	default:
		return Ref{}, false
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case uint32:
		return int(n), true
	case int32:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

// toItem converts a wire item's variant-valued attributes into an
// Item, resolving ":section"/":submenu" into Ref values the way
// Item.SectionRef/SubmenuRef expect.
func toItem(w wireItem) Item {
	it := make(Item, len(w))
	for k, v := range w {
		val := v.Value()
		switch k {
		case ":section", ":submenu":
			if ref, ok := toRef(val); ok {
				it[k] = ref
				continue
			}
		}
		it[k] = val
	}
	return it
}

func toSections(raw []wireSection) []RemoteSection {
	out := make([]RemoteSection, 0, len(raw))
	for _, s := range raw {
		items := make([]Item, 0, len(s.Items))
		for _, w := range s.Items {
			items = append(items, toItem(w))
		}
		out = append(out, RemoteSection{
			MenuID:    int(s.Sub),
			SectionID: int(s.Section),
			Items:     items,
		})
	}
	return out
}

func toChanges(raw []wireChange) []Change {
	out := make([]Change, 0, len(raw))
	for _, c := range raw {
		insert := make([]Item, 0, len(c.Insert))
		for _, w := range c.Insert {
			insert = append(insert, toItem(w))
		}
		out = append(out, Change{
			Subscription: int(c.Sub),
			Section:      int(c.Section),
			Position:     int(c.Position),
			RemoveCount:  int(c.RemoveCount),
			Insert:       insert,
		})
	}
	return out
}

// DBusMenuTransport implements MenuTransport against a real
// org.gtk.Menus object, issuing calls asynchronously via
// dbus.Object.Go and posting their completion back onto loop, per the
// suspension-point model: no caller ever blocks the event loop
// goroutine waiting on the bus.
type DBusMenuTransport struct {
	obj    dbus.BusObject
	loop   *eventloop.Loop
	logger *slog.Logger
}

// NewDBusMenuTransport binds a MenuTransport to service/path on conn.
func NewDBusMenuTransport(conn *dbus.Conn, loop *eventloop.Loop, service string, path dbus.ObjectPath) *DBusMenuTransport {
	return &DBusMenuTransport{
		obj:    conn.Object(service, path),
		loop:   loop,
		logger: slog.With("component", "gmenu-transport", "service", service, "path", string(path)),
	}
}

func (t *DBusMenuTransport) Start(id int, reply func([]RemoteSection, error)) {
	ch := make(chan *dbus.Call, 1)
	t.obj.Go("org.gtk.Menus.Start", 0, ch, []uint32{uint32(id)})

	go func() {
		call := <-ch
		t.loop.Post(func() {
			if call.Err != nil {
				t.logger.Warn("Start failed", "id", id, "err", call.Err)
				reply(nil, call.Err)
				return
			}
			var raw []wireSection
			if err := call.Store(&raw); err != nil {
				reply(nil, fmt.Errorf("decode Start reply: %w", err))
				return
			}
			reply(toSections(raw), nil)
		})
	}()
}

func (t *DBusMenuTransport) End(ids []int, reply func(error)) {
	idList := make([]uint32, len(ids))
	for i, id := range ids {
		idList[i] = uint32(id)
	}

	ch := make(chan *dbus.Call, 1)
	t.obj.Go("org.gtk.Menus.End", 0, ch, idList)

	go func() {
		call := <-ch
		t.loop.Post(func() {
			if call.Err != nil {
				t.logger.Warn("End failed", "ids", ids, "err", call.Err)
			}
			reply(call.Err)
		})
	}()
}

// DecodeChanged converts the raw a(uuuuaa{sv}) payload of an
// org.gtk.Menus Changed signal into Changes. Callers are expected to
// obtain sig from a dbus.Signal matched on this object's path and
// pass it here before applying the result on the event loop.
func DecodeChanged(body []any) ([]Change, error) {
	if len(body) != 1 {
		return nil, fmt.Errorf("Changed signal: expected 1 argument, got %d", len(body))
	}
	var raw []wireChange
	if err := dbus.Store([]any{body[0]}, &raw); err != nil {
		return nil, fmt.Errorf("decode Changed signal: %w", err)
	}
	return toChanges(raw), nil
}

// DBusActionTransport implements ActionTransport against a real
// org.gtk.Actions object.
type DBusActionTransport struct {
	obj    dbus.BusObject
	loop   *eventloop.Loop
	logger *slog.Logger
}

// NewDBusActionTransport binds an ActionTransport to service/path on conn.
func NewDBusActionTransport(conn *dbus.Conn, loop *eventloop.Loop, service string, path dbus.ObjectPath) *DBusActionTransport {
	return &DBusActionTransport{
		obj:    conn.Object(service, path),
		loop:   loop,
		logger: slog.With("component", "gmenu-action-transport", "service", service, "path", string(path)),
	}
}

func toActionState(w wireActionState) ActionState {
	s := ActionState{
		Enabled:       w.Enabled,
		ParameterType: string(w.ParameterType),
		HasState:      len(w.State) > 0,
	}
	if s.HasState {
		s.State = w.State[0].Value()
	}
	return s
}

func (t *DBusActionTransport) DescribeAll(reply func(map[string]ActionState, error)) {
	ch := make(chan *dbus.Call, 1)
	t.obj.Go("org.gtk.Actions.DescribeAll", 0, ch)

	go func() {
		call := <-ch
		t.loop.Post(func() {
			if call.Err != nil {
				t.logger.Warn("DescribeAll failed", "err", call.Err)
				reply(nil, call.Err)
				return
			}
			var raw map[string]wireActionState
			if err := call.Store(&raw); err != nil {
				reply(nil, fmt.Errorf("decode DescribeAll reply: %w", err))
				return
			}
			out := make(map[string]ActionState, len(raw))
			for name, w := range raw {
				out[name] = toActionState(w)
			}
			reply(out, nil)
		})
	}()
}

func (t *DBusActionTransport) Activate(name string, target any, timestamp uint32) {
	var params []dbus.Variant
	if target != nil {
		params = []dbus.Variant{dbus.MakeVariant(target)}
	}
	platformData := map[string]dbus.Variant{
		"timestamp": dbus.MakeVariant(timestamp),
	}

	ch := make(chan *dbus.Call, 1)
	t.obj.Go("org.gtk.Actions.Activate", 0, ch, name, params, platformData)

	go func() {
		call := <-ch
		t.loop.Post(func() {
			if call.Err != nil {
				t.logger.Warn("Activate failed", "name", name, "err", call.Err)
			}
		})
	}()
}

// DecodeActionsChanged converts the raw payload of an
// org.gtk.Actions Changed signal (as, a{sb}, a{sv}, a{s(bgav)}) into
// the pieces ActionGroup.ApplyChanged expects.
func DecodeActionsChanged(body []any) (removed []string, enabledChanges map[string]bool, stateChanges map[string]any, added map[string]ActionState, err error) {
	if len(body) != 4 {
		return nil, nil, nil, nil, fmt.Errorf("Actions.Changed signal: expected 4 arguments, got %d", len(body))
	}

	var rawAdded map[string]wireActionState
	if err := dbus.Store(body, &removed, &enabledChanges, &stateChanges, &rawAdded); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("decode Actions.Changed signal: %w", err)
	}

	added = make(map[string]ActionState, len(rawAdded))
	for name, w := range rawAdded {
		added[name] = toActionState(w)
	}
	return removed, enabledChanges, stateChanges, added, nil
}
