package binding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globalmenuproxy/globalmenuproxy/internal/gmenu"
)

type stubMenuTransport struct {
	starts map[int][]gmenu.RemoteSection
}

func (s *stubMenuTransport) Start(id int, reply func([]gmenu.RemoteSection, error)) {
	reply(s.starts[id], nil)
}

func (s *stubMenuTransport) End(ids []int, reply func(error)) { reply(nil) }

type stubActionTransport struct {
	table     map[string]gmenu.ActionState
	activated []string
}

func (s *stubActionTransport) DescribeAll(reply func(map[string]gmenu.ActionState, error)) {
	reply(s.table, nil)
}

func (s *stubActionTransport) Activate(name string, target any, timestamp uint32) {
	s.activated = append(s.activated, name)
}

func newTestBinding(appMenuItems, menuBarItems []gmenu.RemoteSection) (*WindowBinding, *stubMenuTransport, *stubMenuTransport) {
	var appTr, barTr *stubMenuTransport
	var appModel, barModel *gmenu.Model

	if appMenuItems != nil {
		appTr = &stubMenuTransport{starts: map[int][]gmenu.RemoteSection{0: appMenuItems}}
		appModel = gmenu.NewModel("com.example.App", "/App/Menus/AppMenu", false, appTr)
	}
	if menuBarItems != nil {
		barTr = &stubMenuTransport{starts: map[int][]gmenu.RemoteSection{0: menuBarItems}}
		barModel = gmenu.NewModel("com.example.App", "/App/Menus/MenuBar", true, barTr)
	}

	appActions := gmenu.NewActionGroup(&stubActionTransport{table: map[string]gmenu.ActionState{}})
	winActions := gmenu.NewActionGroup(&stubActionTransport{table: map[string]gmenu.ActionState{}})

	b := New(1, "com.example.App", "/MenuBar/1", appModel, barModel, appActions, winActions, nil)
	return b, appTr, barTr
}

func TestWindowBinding_AppMenuBecomesCurrentFirst(t *testing.T) {
	b, _, _ := newTestBinding(
		[]gmenu.RemoteSection{{MenuID: 0, SectionID: 0, Items: []gmenu.Item{{"label": "File"}}}},
		nil,
	)

	var updates int
	b.OnLayoutUpdated = func(rev uint32, parentID int32) { updates++ }

	b.Start()

	assert.Equal(t, CurrentAppMenu, b.Current())
	assert.Equal(t, 1, updates)
}

func TestWindowBinding_MenuBarPreemptsAppMenu(t *testing.T) {
	b, _, _ := newTestBinding(
		[]gmenu.RemoteSection{{MenuID: 0, SectionID: 0, Items: []gmenu.Item{{"label": "File"}}}},
		nil,
	)
	b.Start()
	require.Equal(t, CurrentAppMenu, b.Current())

	// Simulate a menubar appearing afterward.
	barTr := &stubMenuTransport{starts: map[int][]gmenu.RemoteSection{
		5: {{MenuID: 5, SectionID: 0, Items: []gmenu.Item{{"label": "Edit"}}}},
	}}
	bar := gmenu.NewModel("com.example.App", "/App/Menus/MenuBar", true, barTr)
	b.MenuBar = bar
	b.wireMenu(bar, CurrentMenuBar)

	var updates int
	b.OnLayoutUpdated = func(rev uint32, parentID int32) { updates++ }

	bar.Start(5)

	assert.Equal(t, CurrentMenuBar, b.Current())
	assert.Equal(t, 1, updates, "switching current must bump layout exactly once")
}

func TestWindowBinding_CurrentNeverDowngrades(t *testing.T) {
	b, _, barTr := newTestBinding(
		[]gmenu.RemoteSection{{MenuID: 0, SectionID: 0, Items: []gmenu.Item{{"label": "File"}}}},
		[]gmenu.RemoteSection{{MenuID: 0, SectionID: 0, Items: []gmenu.Item{{"label": "Edit"}}}},
	)
	_ = barTr
	b.Start()

	assert.Equal(t, CurrentMenuBar, b.Current())

	// App menu reappearing must never demote the menubar.
	b.onMenuAppeared(CurrentAppMenu)
	assert.Equal(t, CurrentMenuBar, b.Current())
}

func TestWindowBinding_ActionResolutionAndTrigger(t *testing.T) {
	winTr := &stubActionTransport{table: map[string]gmenu.ActionState{"save": {Enabled: true}}}
	winActions := gmenu.NewActionGroup(winTr)
	winActions.Load()

	b := &WindowBinding{WinActions: winActions}

	group, name, ok := b.resolveAction("win.save")
	require.True(t, ok)
	assert.Same(t, winActions, group)
	assert.Equal(t, "save", name)

	b.Trigger("win.save", nil, 42)
	assert.Equal(t, []string{"save"}, winTr.activated)
}

func TestWindowBinding_UnrecognizedPrefixDoesNotResolve(t *testing.T) {
	b := &WindowBinding{}
	_, _, ok := b.resolveAction("gtk.unknown")
	assert.False(t, ok)
}
