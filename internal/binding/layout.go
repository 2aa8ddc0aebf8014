package binding

import (
	"github.com/globalmenuproxy/globalmenuproxy/internal/gmenu"
	"github.com/globalmenuproxy/globalmenuproxy/internal/ids"
)

// Layout is a DBusMenu layout node: an id, a property map, and
// children. It mirrors the wire shape of GetLayout's (i, a{sv}, av)
// result tuple one level removed from D-Bus marshaling concerns.
type Layout struct {
	ID         int32
	Properties map[string]any
	Children   []Layout
}

// pendingLayout is a deferred GetLayout request waiting on a
// subscription to resolve, per the multimap described in section 3.
type pendingLayout struct {
	parentID       int32
	recursionDepth int
	propertyNames  []string
	reply          func(rev uint32, layout Layout, ok bool)
}

// GetLayout resolves parentID and replies either synchronously (via
// reply, called before GetLayout returns) or later, once the
// subscription it depends on completes. The bool passed to reply is
// false only when the binding has no current menu at all, matching
// the "empty layout, no delay" behavior of an unmanaged window.
func (b *WindowBinding) GetLayout(parentID int32, recursionDepth int, propertyNames []string, reply func(rev uint32, layout Layout, ok bool)) {
	m := b.currentModel()
	if m == nil {
		reply(b.revision, Layout{}, false)
		return
	}

	sub, sec, idx := ids.Unpack(parentID)

	if !m.HasSubscription(sub) {
		b.pending[sub] = append(b.pending[sub], pendingLayout{
			parentID:       parentID,
			recursionDepth: recursionDepth,
			propertyNames:  propertyNames,
			reply:          reply,
		})
		b.touchMetrics()
		m.Start(sub)
		return
	}

	section, ok := m.GetSection(sub, sec)
	if !ok || idx >= len(section.Items) {
		reply(b.revision, Layout{}, true)
		return
	}

	item := section.Items[idx]
	if ref, ok := item.SubmenuRef(); ok {
		sub, sec, idx = ref.Sub, ref.Section, 0

		if !m.HasSubscription(sub) {
			b.pending[sub] = append(b.pending[sub], pendingLayout{
				parentID:       parentID,
				recursionDepth: recursionDepth,
				propertyNames:  propertyNames,
				reply:          reply,
			})
			b.touchMetrics()
			m.Start(sub)
			return
		}

		section, ok = m.GetSection(sub, sec)
		if !ok {
			reply(b.revision, Layout{}, true)
			return
		}
	}

	node := Layout{
		ID:         ids.Pack(sub, sec, 0),
		Properties: map[string]any{"children-display": "submenu"},
		Children:   b.expandSection(m, sub, sec, section),
	}
	reply(b.revision, node, true)
}

// expandSection builds the child layout list for section, splicing in
// any section-alias chains and inserting a trailing separator after
// each alias group that is not the section's last item.
func (b *WindowBinding) expandSection(m *gmenu.Model, sub, sec int, section gmenu.Section) []Layout {
	items := section.Items
	count := len(items)

	children := make([]Layout, 0, count)
	for index, item := range items {
		ref, isAlias := item.SectionRef()
		if !isAlias {
			children = append(children, Layout{
				ID:         ids.Pack(sub, sec, index),
				Properties: b.itemProperties(item),
			})
			continue
		}

		origSub, origSec := ref.Sub, ref.Section
		aliased, ok := m.GetSection(origSub, origSec)
		if !ok {
			continue
		}

		// Chase a chain of single-item aliases (an alias whose sole
		// content is itself an alias). A visited set stops the chase at
		// the first section seen twice, so a cyclic chain terminates.
		visited := map[gmenu.Ref]bool{{Sub: origSub, Section: origSec}: true}
		for len(aliased.Items) == 1 {
			next, ok := aliased.Items[0].SectionRef()
			if !ok || visited[next] {
				break
			}
			visited[next] = true
			origSub, origSec = next.Sub, next.Section
			aliased, ok = m.GetSection(origSub, origSec)
			if !ok {
				break
			}
		}

		for i, leaf := range aliased.Items {
			children = append(children, Layout{
				ID:         ids.Pack(origSub, origSec, i),
				Properties: b.itemProperties(leaf),
			})
		}

		if count > 1 && index < count-1 {
			children = append(children, Layout{
				ID: ids.Pack(sub, sec, index),
				Properties: map[string]any{
					"type":    "separator",
					"enabled": true,
					"visible": true,
				},
			})
		}
	}

	return children
}

// GetGroupProperties resolves ids against the current menu, returning
// a map keyed by id; ids not found are simply absent from the result.
// An empty idList yields an empty map; it is not treated as a request
// for every known item.
func (b *WindowBinding) GetGroupProperties(idList []int32, propertyNames []string) map[int32]map[string]any {
	m := b.currentModel()
	result := make(map[int32]map[string]any)
	if m == nil {
		return result
	}

	for _, id := range idList {
		sub, sec, idx := ids.Unpack(id)
		section, ok := m.GetSection(sub, sec)
		if !ok || idx >= len(section.Items) {
			continue
		}
		result[id] = filterProps(b.itemProperties(section.Items[idx]), propertyNames)
	}
	return result
}

// GetProperty resolves a single property of a single item.
func (b *WindowBinding) GetProperty(id int32, name string) (any, bool) {
	m := b.currentModel()
	if m == nil {
		return nil, false
	}
	sub, sec, idx := ids.Unpack(id)
	section, ok := m.GetSection(sub, sec)
	if !ok || idx >= len(section.Items) {
		return nil, false
	}
	v, ok := b.itemProperties(section.Items[idx])[name]
	return v, ok
}

// resolvePending re-runs GetLayout for every request queued against
// sub, once that subscription has resolved.
func (b *WindowBinding) resolvePending(sub int) {
	requests := b.pending[sub]
	if len(requests) == 0 {
		return
	}
	delete(b.pending, sub)
	b.touchMetrics()

	for _, req := range requests {
		b.GetLayout(req.parentID, req.recursionDepth, req.propertyNames, req.reply)
	}
}

// Event resolves the item at id and, unless it is a submenu, triggers
// its action.
func (b *WindowBinding) Event(id int32, eventID string, data any, timestamp uint32) {
	if eventID != "clicked" {
		return
	}

	m := b.currentModel()
	if m == nil {
		return
	}

	sub, sec, idx := ids.Unpack(id)
	item, ok := m.GetItem(sub, sec, idx)
	if !ok {
		return
	}
	if _, isSubmenu := item.SubmenuRef(); isSubmenu {
		return
	}

	action, hasAction := item.Action()
	if !hasAction {
		return
	}
	target, _ := item.Target()
	b.Trigger(action, target, timestamp)
}
