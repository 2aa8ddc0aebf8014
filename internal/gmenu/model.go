package gmenu

import (
	"time"

	"github.com/globalmenuproxy/globalmenuproxy/internal/ids"
)

// DefaultStartIndex is the sentinel subscription id under which a
// non-menubar model's real app-menu is published upstream, while the
// panel addresses it at subscription 0. See Model.Start for the
// virtual-root rewrite this implies.
const DefaultStartIndex = 100

// DefaultDeferWindow is how long Start(0) on a non-menubar model
// waits before giving up on the remote publishing a real subscription
// 0 and synthesizing the virtual root instead.
const DefaultDeferWindow = 20 * time.Millisecond

// Model is the per-window, per-object-path mutable mirror of a GMenu
// tree. It must be driven exclusively from one event-loop goroutine.
type Model struct {
	ServiceName string
	ObjectPath  string
	IsMenubar   bool

	startIndex  int
	deferWindow time.Duration
	transport   MenuTransport
	afterFunc   func(d time.Duration, f func())

	menus   map[int][]Section
	active  map[int]bool
	probing map[int]bool

	OnSubscribed        func(sub int)
	OnFailedToSubscribe func(sub int)
	OnMenuAppeared      func()
	OnMenuDisappeared   func()
	OnItemsChanged      func(dirty []int32)
	OnMenusChanged      func(dirty []int32)
}

// Option configures a Model at construction.
type Option func(*Model)

// WithStartIndex overrides DefaultStartIndex.
func WithStartIndex(idx int) Option {
	return func(m *Model) { m.startIndex = idx }
}

// WithDeferWindow overrides DefaultDeferWindow.
func WithDeferWindow(d time.Duration) Option {
	return func(m *Model) { m.deferWindow = d }
}

// withAfterFunc overrides the timer used for the virtual-root defer.
// Test-only; production code always uses the real clock.
func withAfterFunc(f func(d time.Duration, fn func())) Option {
	return func(m *Model) { m.afterFunc = f }
}

// NewModel constructs a Model for one remote service/object path. The
// caller is expected to have already connected the underlying
// org.gtk.Menus.Changed signal to ApplyChanges.
func NewModel(serviceName, objectPath string, isMenubar bool, transport MenuTransport, opts ...Option) *Model {
	m := &Model{
		ServiceName: serviceName,
		ObjectPath:  objectPath,
		IsMenubar:   isMenubar,
		startIndex:  DefaultStartIndex,
		deferWindow: DefaultDeferWindow,
		transport:   transport,
		menus:       make(map[int][]Section),
		active:      make(map[int]bool),
		probing:     make(map[int]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.afterFunc == nil {
		m.afterFunc = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	return m
}

// HasMenu reports whether the model's arena holds any subscription at
// all.
func (m *Model) HasMenu() bool {
	return len(m.menus) > 0
}

// HasSubscription reports whether sub is a fully active subscription.
func (m *Model) HasSubscription(sub int) bool {
	return m.active[sub]
}

// ActiveCount returns the number of subscriptions currently active.
func (m *Model) ActiveCount() int {
	return len(m.active)
}

// reindexTarget returns the local subscription id a raw remote
// reference to sub should be rewritten to, applying the virtual-root
// rewrite for non-menubar models.
func (m *Model) reindexTarget(sub int) int {
	if !m.IsMenubar && sub == 0 {
		return m.startIndex
	}
	return sub
}

func (m *Model) rewriteRef(r Ref) Ref {
	r.Sub = m.reindexTarget(r.Sub)
	return r
}

func (m *Model) rewriteItem(it Item) Item {
	if ref, ok := it.SectionRef(); ok {
		it = it.Clone()
		it[":section"] = m.rewriteRef(ref)
		return it
	}
	if ref, ok := it.SubmenuRef(); ok {
		it = it.Clone()
		it[":submenu"] = m.rewriteRef(ref)
		return it
	}
	return it
}

// Start is an idempotent subscription request. See package doc and
// SPEC_FULL.md section 4.1 for the full state machine, including the
// virtual-root synthesis for non-menubar models.
func (m *Model) Start(id int) {
	if m.active[id] || m.probing[id] {
		return
	}
	m.probing[id] = true

	if !m.IsMenubar && id == 0 {
		m.afterFunc(m.deferWindow, func() { m.resolveVirtualRoot(id) })
		return
	}

	remote := id
	if !m.IsMenubar && id == m.startIndex {
		remote = 0
	}
	m.issueStart(remote, id)
}

// resolveVirtualRoot fires after the defer window elapses for
// Start(0) on a non-menubar model. If a real subscription 0 never
// arrived in the meantime (nothing ever calls Start(0) upstream for
// app-menu-only windows), synthesize the two-item virtual root.
func (m *Model) resolveVirtualRoot(id int) {
	if _, ok := m.menus[id]; !ok {
		hadMenu := m.HasMenu()

		m.menus[id] = []Section{
			{ID: 0, Items: []Item{{":section": Ref{Sub: 0, Section: 1}}}},
			{ID: 1, Items: []Item{{":submenu": Ref{Sub: m.startIndex, Section: 0}, "label": "Menu"}}},
		}
		delete(m.probing, id)
		m.active[id] = true

		if !hadMenu && m.HasMenu() {
			m.fire(m.OnMenuAppeared)
		}
	}

	m.fireSub(m.OnSubscribed, id)
}

func (m *Model) issueStart(remote, local int) {
	m.transport.Start(remote, func(sections []RemoteSection, err error) {
		delete(m.probing, local)

		if err != nil {
			m.fireSub(m.OnFailedToSubscribe, local)
			return
		}

		if len(sections) == 0 {
			// LibreOffice-at-startup quirk: keep probing, a later
			// Changed signal will trigger a fresh Start.
			m.probing[local] = true
			return
		}

		hadMenu := m.HasMenu()

		secs := make([]Section, 0, len(sections))
		for _, rs := range sections {
			menuID := rs.MenuID
			if remote != local && menuID == remote {
				menuID = local
			}
			_ = menuID // MenuID on the wire identifies the subscription, already == local by construction below

			items := make([]Item, len(rs.Items))
			for i, it := range rs.Items {
				if remote != local {
					it = m.rewriteRemappedItem(it, remote, local)
				} else {
					it = m.rewriteItem(it)
				}
				items[i] = it
			}
			secs = append(secs, Section{ID: rs.SectionID, Items: items})
		}

		m.menus[local] = append(m.menus[local], secs...)
		m.active[local] = true

		if !hadMenu && m.HasMenu() {
			m.fire(m.OnMenuAppeared)
		}
		m.fireSub(m.OnSubscribed, local)
	})
}

// rewriteRemappedItem rewrites references inside an item fetched
// under a remote/local id substitution (the startIndex dance): any
// reference whose subscription equals the original remote id is
// remapped to local, in addition to the ordinary virtual-root rewrite
// for any other 0-subscription reference.
func (m *Model) rewriteRemappedItem(it Item, remote, local int) Item {
	rewrite := func(r Ref) Ref {
		if r.Sub == remote {
			r.Sub = local
			return r
		}
		return m.rewriteRef(r)
	}

	if ref, ok := it.SectionRef(); ok {
		it = it.Clone()
		it[":section"] = rewrite(ref)
		return it
	}
	if ref, ok := it.SubmenuRef(); ok {
		it = it.Clone()
		it[":submenu"] = rewrite(ref)
		return it
	}
	return it
}

// Stop issues End(ids) and, on success, releases them from both the
// active set and the arena.
func (m *Model) Stop(idsToStop []int) {
	m.transport.End(idsToStop, func(err error) {
		if err != nil {
			return
		}
		for _, id := range idsToStop {
			delete(m.active, id)
			delete(m.menus, id)
		}
		if len(m.active) == 0 {
			m.fire(m.OnMenuDisappeared)
		}
	})
}

// Close releases every active subscription. Best-effort: the bulk End
// call's result is not awaited by callers, matching the teardown
// semantics in SPEC_FULL.md section 5.
func (m *Model) Close() {
	if len(m.active) == 0 {
		return
	}
	idsToStop := make([]int, 0, len(m.active))
	for id := range m.active {
		idsToStop = append(idsToStop, id)
	}
	m.Stop(idsToStop)
}

// GetSection returns the section (sub, sec) if known.
func (m *Model) GetSection(sub, sec int) (Section, bool) {
	for _, s := range m.menus[sub] {
		if s.ID == sec {
			return s, true
		}
	}
	return Section{}, false
}

// GetItem returns the item at (sub, sec, idx) if known.
func (m *Model) GetItem(sub, sec, idx int) (Item, bool) {
	s, ok := m.GetSection(sub, sec)
	if !ok || idx < 0 || idx >= len(s.Items) {
		return nil, false
	}
	return s.Items[idx], true
}

func (m *Model) findOrCreateSection(sub, sec int) *Section {
	list := m.menus[sub]
	for i := range list {
		if list[i].ID == sec {
			return &list[i]
		}
	}
	list = append(list, Section{ID: sec})
	m.menus[sub] = list
	return &m.menus[sub][len(list)-1]
}

// ApplyChanges applies a GMenu Changed delta. See SPEC_FULL.md section
// 4.1 for the full algorithm.
func (m *Model) ApplyChanges(changes []Change) {
	hadMenu := m.HasMenu()
	var dirtyItems, dirtyMenus []int32

	for _, ch := range changes {
		sub := m.reindexTarget(ch.Subscription)

		if !m.active[sub] {
			m.Start(sub)
			continue
		}

		section := m.findOrCreateSection(sub, ch.Section)

		updateInPlace := ch.RemoveCount == len(ch.Insert)

		removeCount := ch.RemoveCount
		pos := ch.Position
		if pos > len(section.Items) {
			pos = len(section.Items)
		}
		if pos+removeCount > len(section.Items) {
			removeCount = len(section.Items) - pos
		}
		if removeCount < 0 {
			removeCount = 0
		}
		section.Items = append(section.Items[:pos], section.Items[pos+removeCount:]...)

		reindex := !m.IsMenubar && sub == m.startIndex
		for i, it := range ch.Insert {
			if reindex {
				it = m.rewriteRemappedItem(it, 0, m.startIndex)
			} else {
				it = m.rewriteItem(it)
			}

			at := pos + i
			if at > len(section.Items) {
				at = len(section.Items)
			}
			section.Items = append(section.Items, nil)
			copy(section.Items[at+1:], section.Items[at:])
			section.Items[at] = it

			if updateInPlace {
				dirtyItems = append(dirtyItems, ids.Pack(sub, ch.Section, at))
			}
		}

		if !updateInPlace {
			dirtyMenus = append(dirtyMenus, ids.Pack(sub, ch.Section, 0))
		}
	}

	if !hadMenu && m.HasMenu() {
		m.fire(m.OnMenuAppeared)
	} else if hadMenu && !m.HasMenu() {
		m.fire(m.OnMenuDisappeared)
	}

	if len(dirtyItems) > 0 && m.OnItemsChanged != nil {
		m.OnItemsChanged(dirtyItems)
	}
	if len(dirtyMenus) > 0 && m.OnMenusChanged != nil {
		m.OnMenusChanged(dirtyMenus)
	}
}

// ActionsChanged scans the model for items referencing any of
// dirtyActions under prefix and reports their packed ids via
// OnItemsChanged.
func (m *Model) ActionsChanged(dirtyActions []string, prefix string) {
	if len(dirtyActions) == 0 {
		return
	}

	prefixed := make(map[string]struct{}, len(dirtyActions))
	for _, a := range dirtyActions {
		prefixed[prefix+a] = struct{}{}
	}

	var dirty []int32
	for sub, sections := range m.menus {
		for _, sec := range sections {
			for idx, it := range sec.Items {
				if action, ok := it.Action(); ok {
					if _, hit := prefixed[action]; hit {
						dirty = append(dirty, ids.Pack(sub, sec.ID, idx))
					}
				}
			}
		}
	}

	if len(dirty) > 0 && m.OnItemsChanged != nil {
		m.OnItemsChanged(dirty)
	}
}

func (m *Model) fire(f func()) {
	if f != nil {
		f()
	}
}

func (m *Model) fireSub(f func(int), id int) {
	if f != nil {
		f(id)
	}
}
