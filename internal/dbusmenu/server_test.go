package dbusmenu

import (
	"log/slog"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globalmenuproxy/globalmenuproxy/internal/binding"
	"github.com/globalmenuproxy/globalmenuproxy/internal/eventloop"
	"github.com/globalmenuproxy/globalmenuproxy/internal/gmenu"
	"github.com/globalmenuproxy/globalmenuproxy/internal/ids"
)

type stubMenuTransport struct {
	starts map[int][]gmenu.RemoteSection
}

func (s *stubMenuTransport) Start(id int, reply func([]gmenu.RemoteSection, error)) {
	reply(s.starts[id], nil)
}

func (s *stubMenuTransport) End(idList []int, reply func(error)) { reply(nil) }

type stubActionTransport struct {
	table map[string]gmenu.ActionState
}

func (s *stubActionTransport) DescribeAll(reply func(map[string]gmenu.ActionState, error)) {
	reply(s.table, nil)
}

func (s *stubActionTransport) Activate(name string, target any, timestamp uint32) {}

func newTestServer(items []gmenu.RemoteSection) *Server {
	tr := &stubMenuTransport{starts: map[int][]gmenu.RemoteSection{0: items}}
	model := gmenu.NewModel("com.example.App", "/App/Menus", true, tr)

	appActions := gmenu.NewActionGroup(&stubActionTransport{table: map[string]gmenu.ActionState{}})
	b := binding.New(1, "com.example.App", "/MenuBar/1", nil, model, appActions, nil, nil)
	b.Start()

	return &Server{binding: b, path: "/MenuBar/1", loop: eventloop.New(1), logger: slog.Default()}
}

func TestGetLayout_BuildsTreeFromBinding(t *testing.T) {
	s := newTestServer([]gmenu.RemoteSection{
		{MenuID: 0, SectionID: 0, Items: []gmenu.Item{{"label": "File"}, {"label": "Edit"}}},
	})
	m := (*menuMethods)(s)

	rev, layout, derr := m.GetLayout(0, -1, nil)
	require.Nil(t, derr)
	assert.Equal(t, uint32(1), rev)
	require.Len(t, layout.Children, 2)

	first, ok := layout.Children[0].(menuLayout)
	require.True(t, ok)
	assert.Equal(t, "File", first.Properties["label"])
}

func TestGetProperty_UnknownPropertyFails(t *testing.T) {
	s := newTestServer([]gmenu.RemoteSection{
		{MenuID: 0, SectionID: 0, Items: []gmenu.Item{{"label": "File"}}},
	})
	m := (*menuMethods)(s)

	_, derr := m.GetProperty(ids.Pack(0, 0, 0), "nonexistent")
	assert.Nil(t, derr, "GetProperty itself never errors on a missing name, only on a missing item")

	_, derr = m.GetProperty(ids.Pack(0, 99, 0), "label")
	assert.NotNil(t, derr)
}

func TestEvent_TriggersAction(t *testing.T) {
	actionTr := &stubActionTransport{table: map[string]gmenu.ActionState{"quit": {Enabled: true}}}
	appActions := gmenu.NewActionGroup(actionTr)

	tr := &stubMenuTransport{starts: map[int][]gmenu.RemoteSection{
		0: {{MenuID: 0, SectionID: 0, Items: []gmenu.Item{{"label": "Quit", "action": "app.quit"}}}},
	}}
	model := gmenu.NewModel("com.example.App", "/App/Menus", true, tr)
	b := binding.New(1, "com.example.App", "/MenuBar/1", nil, model, appActions, nil, nil)
	b.Start()

	s := &Server{binding: b, path: "/MenuBar/1", loop: eventloop.New(1), logger: slog.Default()}
	m := (*menuMethods)(s)

	derr := m.Event(ids.Pack(0, 0, 0), "clicked", dbus.MakeVariant(""), 0)
	assert.Nil(t, derr)
}

func TestAboutToShow_AlwaysFalse(t *testing.T) {
	s := newTestServer(nil)
	m := (*menuMethods)(s)

	needUpdate, derr := m.AboutToShow(0)
	assert.False(t, needUpdate)
	assert.Nil(t, derr)
}
