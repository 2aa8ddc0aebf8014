package windowwatcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProps_HasMenu(t *testing.T) {
	cases := []struct {
		name string
		p    Props
		want bool
	}{
		{"no bus name", Props{AppMenuObjectPath: "/App/Menus"}, false},
		{"app menu only", Props{UniqueBusName: ":1.23", AppMenuObjectPath: "/App/Menus"}, true},
		{"menu bar only", Props{UniqueBusName: ":1.23", MenuBarObjectPath: "/App/Menus/MenuBar"}, true},
		{"neither", Props{UniqueBusName: ":1.23"}, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.p.HasMenu(), c.name)
	}
}

func TestManual_DispatchesToAllHandlersInOrder(t *testing.T) {
	m := NewManual()

	var order []string
	m.OnWindowAdded(func(id uint32, props Props) { order = append(order, "added-1") })
	m.OnWindowAdded(func(id uint32, props Props) { order = append(order, "added-2") })
	m.OnWindowRemoved(func(id uint32) { order = append(order, "removed-1") })

	m.WindowAdded(1, Props{UniqueBusName: ":1.1"})
	m.WindowRemoved(1)

	assert.Equal(t, []string{"added-1", "added-2", "removed-1"}, order)
}

func TestManual_PassesIDAndProps(t *testing.T) {
	m := NewManual()

	var gotID uint32
	var gotProps Props
	m.OnWindowAdded(func(id uint32, props Props) {
		gotID = id
		gotProps = props
	})

	want := Props{UniqueBusName: ":1.5", AppMenuObjectPath: "/App/Menus"}
	m.WindowAdded(42, want)

	assert.Equal(t, uint32(42), gotID)
	assert.Equal(t, want, gotProps)
}
