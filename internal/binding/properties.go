package binding

import "github.com/globalmenuproxy/globalmenuproxy/internal/gmenu"

// ParseAccel converts a GTK accelerator string such as
// "<Primary><Shift>Q" into the shortcut format DBusMenu expects: a
// list of lists of strings, modifiers first in canonical order
// (Control, Shift, Alt, Super), the residual key token last. An empty
// accel yields a nil result, meaning the caller should omit the
// "shortcut" property entirely.
func ParseAccel(accel string) [][]string {
	if accel == "" {
		return nil
	}

	var hasControl, hasShift, hasAlt, hasSuper bool
	rest := accel
	for {
		if len(rest) == 0 || rest[0] != '<' {
			break
		}
		end := -1
		for i := 1; i < len(rest); i++ {
			if rest[i] == '>' {
				end = i
				break
			}
		}
		if end < 0 {
			break
		}
		switch rest[1:end] {
		case "Primary", "Control":
			hasControl = true
		case "Shift":
			hasShift = true
		case "Alt":
			hasAlt = true
		case "Super":
			hasSuper = true
		}
		rest = rest[end+1:]
	}

	var parts []string
	if hasControl {
		parts = append(parts, "Control")
	}
	if hasShift {
		parts = append(parts, "Shift")
	}
	if hasAlt {
		parts = append(parts, "Alt")
	}
	if hasSuper {
		parts = append(parts, "Super")
	}
	if rest != "" {
		parts = append(parts, rest)
	}
	if len(parts) == 0 {
		return nil
	}
	return [][]string{parts}
}

// itemProperties synthesizes the DBusMenu property map for a single
// GMenu item, per the table in section 4.3.
func (b *WindowBinding) itemProperties(it gmenu.Item) map[string]any {
	props := make(map[string]any)

	if label := it.Label(); label != "" {
		props["label"] = label
	}
	if it.IsSeparator() {
		props["type"] = "separator"
	}
	if _, ok := it.SubmenuRef(); ok {
		props["children-display"] = "submenu"
	}
	if shortcut := ParseAccel(it.Accel()); shortcut != nil {
		props["shortcut"] = shortcut
	}

	action, hasAction := it.Action()
	var state gmenu.ActionState
	actionResolved := false
	if hasAction {
		if group, name, ok := b.resolveAction(action); ok {
			if s, found := group.Get(name); found {
				state, actionResolved = s, true
			}
		}
	}

	enabled := true
	if hasAction {
		enabled = actionResolved && state.Enabled
	}
	props["enabled"] = enabled

	visible := true
	switch it.HiddenWhen() {
	case "action-disabled":
		if hasAction && !enabled {
			visible = false
		}
	case "action-missing":
		if hasAction && !actionResolved {
			visible = false
		}
	case "macos-menubar":
		visible = true
	}
	props["visible"] = visible

	if icon := it.Icon(); icon != "" {
		props["icon-name"] = icon
	}

	if actionResolved && state.HasState {
		if _, isSubmenu := it.SubmenuRef(); !isSubmenu {
			switch sv := state.State.(type) {
			case bool:
				props["toggle-type"] = "checkmark"
				if sv {
					props["toggle-state"] = 1
				} else {
					props["toggle-state"] = 0
				}
			case string:
				props["toggle-type"] = "radio"
				target, _ := it.Target()
				ts, _ := target.(string)
				if ts == sv {
					props["toggle-state"] = 1
				} else {
					props["toggle-state"] = 0
				}
			}
		}
	}

	return props
}

func filterProps(props map[string]any, names []string) map[string]any {
	if len(names) == 0 {
		return props
	}
	out := make(map[string]any, len(names))
	for _, n := range names {
		if v, ok := props[n]; ok {
			out[n] = v
		}
	}
	return out
}
