// Package gmenu implements the subscription-tracking mirror of a
// GMenu (org.gtk.Menus / org.gtk.Actions) tree: MenuModel and
// ActionGroup. Both types are meant to be driven exclusively from a
// single event-loop goroutine (see internal/eventloop); they keep no
// locks of their own.
package gmenu

import "strings"

// defaultActionIcons maps a handful of well-known bare action names to
// their conventional freedesktop icon-theme name, the fallback an item
// with neither "icon" nor "verb-icon" falls back to.
var defaultActionIcons = map[string]string{
	"quit":        "application-exit",
	"about":       "help-about",
	"help":        "help-browser",
	"preferences": "preferences-system",
	"new":         "document-new",
	"open":        "document-open",
	"save":        "document-save",
	"save-as":     "document-save-as",
	"print":       "document-print",
	"close":       "window-close",
	"copy":        "edit-copy",
	"cut":         "edit-cut",
	"paste":       "edit-paste",
	"undo":        "edit-undo",
	"redo":        "edit-redo",
	"find":        "edit-find",
}

// Ref is a reference to a section in some (possibly different)
// subscription, as carried by an item's ":section" or ":submenu"
// attribute.
type Ref struct {
	Sub     int
	Section int
}

// Item is a single GMenu item: an unordered attribute bag, exactly as
// org.gtk.Menus delivers it over a{sv}.
type Item map[string]any

// Label returns the item's "label" attribute, or "" if absent.
func (i Item) Label() string {
	s, _ := i["label"].(string)
	return s
}

// Action returns the item's "action" attribute and whether it is
// present.
func (i Item) Action() (string, bool) {
	s, ok := i["action"].(string)
	return s, ok
}

// Target returns the item's "target" attribute, the action parameter
// used for radio-group comparison and Activate calls.
func (i Item) Target() (any, bool) {
	v, ok := i["target"]
	return v, ok
}

// Accel returns the item's "accel" attribute, a GTK accelerator
// string such as "<Primary><Shift>Q".
func (i Item) Accel() string {
	s, _ := i["accel"].(string)
	return s
}

// Icon returns the first non-empty of "icon", "verb-icon", and a
// freedesktop default derived from the item's bare action name.
func (i Item) Icon() string {
	if s, _ := i["icon"].(string); s != "" {
		return s
	}
	if s, _ := i["verb-icon"].(string); s != "" {
		return s
	}
	action, ok := i.Action()
	if !ok {
		return ""
	}
	bare := action
	if idx := strings.LastIndexByte(action, '.'); idx >= 0 {
		bare = action[idx+1:]
	}
	return defaultActionIcons[bare]
}

// HiddenWhen returns the item's "hidden-when" attribute.
func (i Item) HiddenWhen() string {
	s, _ := i["hidden-when"].(string)
	return s
}

// SectionRef returns the item's ":section" reference, if it carries
// one. An item with a section reference is a section alias: its sole
// purpose is to splice another section's items inline.
func (i Item) SectionRef() (Ref, bool) {
	r, ok := i[":section"].(Ref)
	return r, ok
}

// SubmenuRef returns the item's ":submenu" reference, if it carries
// one.
func (i Item) SubmenuRef() (Ref, bool) {
	r, ok := i[":submenu"].(Ref)
	return r, ok
}

// IsSeparator reports whether the item is a section alias, which
// DBusMenu represents as a separator in the flattened tree.
func (i Item) IsSeparator() bool {
	_, ok := i.SectionRef()
	return ok
}

// Clone returns a shallow copy of i.
func (i Item) Clone() Item {
	c := make(Item, len(i))
	for k, v := range i {
		c[k] = v
	}
	return c
}

// Section is one ordered list of items within a subscription,
// identified by (subscription id implicit in the owning map, section
// id).
type Section struct {
	ID    int
	Items []Item
}

// Change is a single entry of a GMenu Changed signal: replace
// RemoveCount items starting at Position in (Subscription, Section)
// with Insert.
type Change struct {
	Subscription int
	Section      int
	Position     int
	RemoveCount  int
	Insert       []Item
}

// RemoteSection is one (menu_id, section_id, items) triple as
// returned by org.gtk.Menus.Start.
type RemoteSection struct {
	MenuID    int
	SectionID int
	Items     []Item
}
