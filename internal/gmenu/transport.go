package gmenu

// MenuTransport abstracts the org.gtk.Menus Start/End calls so
// MenuModel can be driven synchronously in tests and asynchronously
// over the real session bus in production. Implementations must
// invoke the reply callback on the owning event loop goroutine -
// MenuModel performs no synchronization of its own.
type MenuTransport interface {
	// Start issues org.gtk.Menus.Start([id]) for a single remote
	// subscription id and reports the result via reply.
	Start(id int, reply func(sections []RemoteSection, err error))

	// End issues org.gtk.Menus.End(ids) for a batch of subscription
	// ids. The call is best-effort: callers only log a failure, they
	// never retry or treat it as fatal.
	End(ids []int, reply func(err error))
}

// ActionTransport abstracts org.gtk.Actions DescribeAll/Activate.
type ActionTransport interface {
	// DescribeAll issues org.gtk.Actions.DescribeAll and reports the
	// full action table.
	DescribeAll(reply func(actions map[string]ActionState, err error))

	// Activate issues org.gtk.Actions.Activate(name, target,
	// platform data), the platform data carrying timestamp.
	Activate(name string, target any, timestamp uint32)
}
