package gmenu

// ActionState mirrors a single org.gtk.Actions entry as returned by
// DescribeAll: {enabled: bool, parameter_type: optional signature,
// state: optional variant}.
type ActionState struct {
	Enabled       bool
	ParameterType string // empty if the action takes no parameter
	HasState      bool
	State         any
}

// ActionGroup is the mirror of one org.gtk.Actions group. Once
// Loaded fires, absence of a name from the table means the action
// does not exist; presence means Enabled/State/ParameterType are all
// well-defined.
type ActionGroup struct {
	transport ActionTransport

	loaded  bool
	actions map[string]ActionState

	OnLoaded        func()
	OnActionsChanged func(names []string)
}

// NewActionGroup constructs an ActionGroup bound to transport. Load
// must be called to populate it.
func NewActionGroup(transport ActionTransport) *ActionGroup {
	return &ActionGroup{
		transport: transport,
		actions:   make(map[string]ActionState),
	}
}

// Load issues DescribeAll. On completion the group's table is
// replaced wholesale and OnLoaded fires.
func (g *ActionGroup) Load() {
	g.transport.DescribeAll(func(actions map[string]ActionState, err error) {
		if err != nil {
			// Transient failure: the group is left empty/unloaded.
			// Callers treat "not loaded" the same as "action
			// unresolved", which is the safe default.
			return
		}
		g.actions = actions
		g.loaded = true
		if g.OnLoaded != nil {
			g.OnLoaded()
		}
	})
}

// Loaded reports whether the initial DescribeAll has completed
// successfully.
func (g *ActionGroup) Loaded() bool {
	return g.loaded
}

// Get returns the state of action name and whether it exists.
func (g *ActionGroup) Get(name string) (ActionState, bool) {
	s, ok := g.actions[name]
	return s, ok
}

// Names returns every known action name. Used to fan out a synthetic
// ActionsChanged the first time a group finishes loading after its
// owning MenuModel has already been initialized.
func (g *ActionGroup) Names() []string {
	names := make([]string, 0, len(g.actions))
	for n := range g.actions {
		names = append(names, n)
	}
	return names
}

// ApplyChanged applies one org.gtk.Actions.Changed delta and reports
// the union of affected action names.
func (g *ActionGroup) ApplyChanged(removed []string, enabledChanges map[string]bool, stateChanges map[string]any, added map[string]ActionState) []string {
	dirty := make(map[string]struct{}, len(removed)+len(enabledChanges)+len(stateChanges)+len(added))

	for _, name := range removed {
		delete(g.actions, name)
		dirty[name] = struct{}{}
	}
	for name, enabled := range enabledChanges {
		s := g.actions[name]
		s.Enabled = enabled
		g.actions[name] = s
		dirty[name] = struct{}{}
	}
	for name, state := range stateChanges {
		s := g.actions[name]
		s.HasState = true
		s.State = state
		g.actions[name] = s
		dirty[name] = struct{}{}
	}
	for name, state := range added {
		g.actions[name] = state
		dirty[name] = struct{}{}
	}

	names := make([]string, 0, len(dirty))
	for name := range dirty {
		names = append(names, name)
	}

	if g.OnActionsChanged != nil && len(names) > 0 {
		g.OnActionsChanged(names)
	}

	return names
}

// Trigger invokes org.gtk.Actions.Activate for name with target.
func (g *ActionGroup) Trigger(name string, target any, timestamp uint32) {
	g.transport.Activate(name, target, timestamp)
}
