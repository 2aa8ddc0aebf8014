package gmenu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMenuTransport is a synchronous stand-in for the real D-Bus
// transport: every call resolves immediately against a scripted
// table, exactly as the engine would see it after a fast round trip.
type fakeMenuTransport struct {
	starts  map[int][]RemoteSection
	failAt  map[int]bool
	started []int
	ended   [][]int
}

func newFakeMenuTransport() *fakeMenuTransport {
	return &fakeMenuTransport{
		starts: make(map[int][]RemoteSection),
		failAt: make(map[int]bool),
	}
}

func (f *fakeMenuTransport) Start(id int, reply func([]RemoteSection, error)) {
	f.started = append(f.started, id)
	if f.failAt[id] {
		reply(nil, assertErr)
		return
	}
	reply(f.starts[id], nil)
}

func (f *fakeMenuTransport) End(ids []int, reply func(error)) {
	f.ended = append(f.ended, ids)
	reply(nil)
}

var assertErr = &fakeErr{"start failed"}

type fakeErr struct{ s string }

func (e *fakeErr) Error() string { return e.s }

// manualTimer lets tests control exactly when the virtual-root defer
// fires instead of racing a real 20ms timer.
type manualTimer struct {
	pending []func()
}

func (t *manualTimer) schedule(d time.Duration, f func()) {
	t.pending = append(t.pending, f)
}

func (t *manualTimer) fireAll() {
	pending := t.pending
	t.pending = nil
	for _, f := range pending {
		f()
	}
}

func TestModel_Start_SimpleSubscription(t *testing.T) {
	tr := newFakeMenuTransport()
	tr.starts[5] = []RemoteSection{
		{MenuID: 5, SectionID: 0, Items: []Item{{"label": "File"}}},
	}
	m := NewModel("com.example.App", "/App/Menus", true, tr)

	var appeared bool
	m.OnMenuAppeared = func() { appeared = true }

	m.Start(5)

	assert.True(t, appeared)
	assert.True(t, m.HasSubscription(5))
	sec, ok := m.GetSection(5, 0)
	require.True(t, ok)
	assert.Equal(t, "File", sec.Items[0].Label())
}

func TestModel_Start_Idempotent(t *testing.T) {
	tr := newFakeMenuTransport()
	tr.starts[5] = []RemoteSection{{MenuID: 5, SectionID: 0, Items: []Item{{"label": "File"}}}}
	m := NewModel("com.example.App", "/App/Menus", true, tr)

	m.Start(5)
	m.Start(5)

	assert.Len(t, tr.started, 1)
}

func TestModel_Start_EmptyReplyKeepsProbing(t *testing.T) {
	// Mirrors the LibreOffice-at-startup quirk: an empty reply must not
	// be treated as "menu is empty", the subscription stays pending
	// for a future Changed-triggered resubscribe.
	tr := newFakeMenuTransport()
	m := NewModel("com.example.App", "/App/Menus", true, tr)

	var subscribed bool
	m.OnSubscribed = func(int) { subscribed = true }

	m.Start(5)

	assert.False(t, subscribed)
	assert.False(t, m.HasSubscription(5))
	assert.False(t, m.HasMenu())

	// A later successful Start must still be possible.
	tr.starts[5] = []RemoteSection{{MenuID: 5, SectionID: 0, Items: []Item{{"label": "File"}}}}
	m.probing[5] = false
	m.Start(5)
	assert.True(t, m.HasSubscription(5))
}

func TestModel_Start_FailurePropagates(t *testing.T) {
	tr := newFakeMenuTransport()
	tr.failAt[5] = true
	m := NewModel("com.example.App", "/App/Menus", true, tr)

	var failed int
	m.OnFailedToSubscribe = func(id int) { failed = id }

	m.Start(5)

	assert.Equal(t, 5, failed)
	assert.False(t, m.HasSubscription(5))
	assert.False(t, m.probing[5])
}

func TestModel_VirtualRoot_SynthesizedWhenNoRealSubscriptionArrives(t *testing.T) {
	tr := newFakeMenuTransport()
	timer := &manualTimer{}
	m := NewModel("com.example.App", "/App/Menus", false, tr, withAfterFunc(timer.schedule))

	var appeared bool
	var subscribed []int
	m.OnMenuAppeared = func() { appeared = true }
	m.OnSubscribed = func(id int) { subscribed = append(subscribed, id) }

	m.Start(0)
	assert.False(t, appeared)
	assert.Empty(t, tr.started, "Start(0) on a non-menubar model must not hit the wire immediately")

	timer.fireAll()

	assert.True(t, appeared)
	assert.Equal(t, []int{0}, subscribed)
	assert.True(t, m.HasSubscription(0))

	root, ok := m.GetSection(0, 1)
	require.True(t, ok)
	submenu, ok := root.Items[0].SubmenuRef()
	require.True(t, ok)
	assert.Equal(t, Ref{Sub: DefaultStartIndex, Section: 0}, submenu)
}

func TestModel_VirtualRoot_SkippedWhenRealSubscriptionWins(t *testing.T) {
	tr := newFakeMenuTransport()
	tr.starts[0] = []RemoteSection{{MenuID: 0, SectionID: 0, Items: []Item{{"label": "File"}}}}
	timer := &manualTimer{}
	m := NewModel("com.example.App", "/App/Menus", false, tr, withAfterFunc(timer.schedule))

	m.Start(0)
	// Real menubar-less app publishes subscription 0 directly, racing
	// ahead of the defer timer.
	m.issueStart(0, 0)

	timer.fireAll()

	sec, ok := m.GetSection(0, 0)
	require.True(t, ok)
	assert.Equal(t, "File", sec.Items[0].Label())
	// The synthesized virtual root must never have overwritten the
	// real content.
	assert.NotEqual(t, "Menu", sec.Items[0].Label())
}

func TestModel_StartIndex_RewritesSubscriptionZeroReferences(t *testing.T) {
	tr := newFakeMenuTransport()
	tr.starts[0] = []RemoteSection{
		{MenuID: 0, SectionID: 0, Items: []Item{
			{":submenu": Ref{Sub: 0, Section: 1}, "label": "File"},
		}},
	}
	m := NewModel("com.example.App", "/App/Menus", false, tr)

	m.Start(DefaultStartIndex)

	assert.Equal(t, []int{0}, tr.started)
	sec, ok := m.GetSection(DefaultStartIndex, 0)
	require.True(t, ok)
	ref, ok := sec.Items[0].SubmenuRef()
	require.True(t, ok)
	assert.Equal(t, DefaultStartIndex, ref.Sub, "nested :submenu refs to subscription 0 must be rewritten to startIndex")
}

func TestModel_Stop_ClearsStateAndFiresDisappeared(t *testing.T) {
	tr := newFakeMenuTransport()
	tr.starts[5] = []RemoteSection{{MenuID: 5, SectionID: 0, Items: []Item{{"label": "File"}}}}
	m := NewModel("com.example.App", "/App/Menus", true, tr)
	m.Start(5)

	var disappeared bool
	m.OnMenuDisappeared = func() { disappeared = true }

	m.Stop([]int{5})

	assert.True(t, disappeared)
	assert.False(t, m.HasSubscription(5))
	assert.False(t, m.HasMenu())
}

func TestModel_ApplyChanges_InPlaceUpdateMarksDirtyItem(t *testing.T) {
	tr := newFakeMenuTransport()
	tr.starts[5] = []RemoteSection{{MenuID: 5, SectionID: 0, Items: []Item{{"label": "Undo"}}}}
	m := NewModel("com.example.App", "/App/Menus", true, tr)
	m.Start(5)

	var dirty []int32
	m.OnItemsChanged = func(ids []int32) { dirty = ids }

	m.ApplyChanges([]Change{{
		Subscription: 5,
		Section:      0,
		Position:     0,
		RemoveCount:  1,
		Insert:       []Item{{"label": "Redo"}},
	}})

	sec, ok := m.GetSection(5, 0)
	require.True(t, ok)
	assert.Equal(t, "Redo", sec.Items[0].Label())
	require.Len(t, dirty, 1)
}

func TestModel_ApplyChanges_StructuralChangeMarksDirtyMenu(t *testing.T) {
	tr := newFakeMenuTransport()
	tr.starts[5] = []RemoteSection{{MenuID: 5, SectionID: 0, Items: []Item{{"label": "File"}}}}
	m := NewModel("com.example.App", "/App/Menus", true, tr)
	m.Start(5)

	var dirtyMenus []int32
	m.OnMenusChanged = func(ids []int32) { dirtyMenus = ids }

	m.ApplyChanges([]Change{{
		Subscription: 5,
		Section:      0,
		Position:     1,
		RemoveCount:  0,
		Insert:       []Item{{"label": "Edit"}, {"label": "View"}},
	}})

	sec, ok := m.GetSection(5, 0)
	require.True(t, ok)
	require.Len(t, sec.Items, 3)
	assert.Equal(t, "Edit", sec.Items[1].Label())
	assert.Equal(t, "View", sec.Items[2].Label())
	assert.NotEmpty(t, dirtyMenus)
}

func TestModel_ApplyChanges_UnknownSubscriptionTriggersStart(t *testing.T) {
	tr := newFakeMenuTransport()
	tr.starts[9] = []RemoteSection{{MenuID: 9, SectionID: 0, Items: []Item{{"label": "File"}}}}
	m := NewModel("com.example.App", "/App/Menus", true, tr)

	m.ApplyChanges([]Change{{Subscription: 9, Section: 0, Position: 0, RemoveCount: 0, Insert: []Item{{"label": "ignored"}}}})

	assert.Equal(t, []int{9}, tr.started)
	sec, ok := m.GetSection(9, 0)
	require.True(t, ok)
	assert.Equal(t, "File", sec.Items[0].Label())
}

func TestModel_ApplyChanges_SectionLengthPreservedForInPlaceUpdates(t *testing.T) {
	tr := newFakeMenuTransport()
	tr.starts[5] = []RemoteSection{{MenuID: 5, SectionID: 0, Items: []Item{
		{"label": "A"}, {"label": "B"}, {"label": "C"},
	}}}
	m := NewModel("com.example.App", "/App/Menus", true, tr)
	m.Start(5)

	before, _ := m.GetSection(5, 0)
	beforeLen := len(before.Items)

	m.ApplyChanges([]Change{{Subscription: 5, Section: 0, Position: 1, RemoveCount: 1, Insert: []Item{{"label": "B2"}}}})

	after, _ := m.GetSection(5, 0)
	assert.Equal(t, beforeLen, len(after.Items))
	assert.Equal(t, "B2", after.Items[1].Label())
}

func TestModel_ActionsChanged_MatchesPrefixedAction(t *testing.T) {
	tr := newFakeMenuTransport()
	tr.starts[5] = []RemoteSection{{MenuID: 5, SectionID: 0, Items: []Item{
		{"label": "Undo", "action": "win.undo"},
		{"label": "Save", "action": "win.save"},
	}}}
	m := NewModel("com.example.App", "/App/Menus", true, tr)
	m.Start(5)

	var dirty []int32
	m.OnItemsChanged = func(ids []int32) { dirty = ids }

	m.ActionsChanged([]string{"undo"}, "win.")

	require.Len(t, dirty, 1)
}

func TestModel_Close_StopsEverything(t *testing.T) {
	tr := newFakeMenuTransport()
	tr.starts[5] = []RemoteSection{{MenuID: 5, SectionID: 0, Items: []Item{{"label": "File"}}}}
	tr.starts[6] = []RemoteSection{{MenuID: 6, SectionID: 0, Items: []Item{{"label": "Edit"}}}}
	m := NewModel("com.example.App", "/App/Menus", true, tr)
	m.Start(5)
	m.Start(6)

	m.Close()

	assert.False(t, m.HasMenu())
	require.Len(t, tr.ended, 1)
	assert.ElementsMatch(t, []int{5, 6}, tr.ended[0])
}
