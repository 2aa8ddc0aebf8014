package registrar

import (
	"log/slog"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCaller implements the caller interface without a real
// connection, so RegisterWindow/UnregisterWindow's error handling can
// be tested without a session bus.
type fakeCaller struct {
	calls []string
	err   error
}

func (f *fakeCaller) Call(method string, flags dbus.Flags, args ...any) *dbus.Call {
	f.calls = append(f.calls, method)
	return &dbus.Call{Err: f.err}
}

func TestRegisterWindow_Success(t *testing.T) {
	obj := &fakeCaller{}
	c := &Client{obj: obj, logger: slog.Default()}

	err := c.RegisterWindow(7, "/MenuBar/7")
	require.NoError(t, err)
	assert.Equal(t, []string{interfName + ".RegisterWindow"}, obj.calls)
}

func TestRegisterWindow_FailureIsWrappedNotFatal(t *testing.T) {
	obj := &fakeCaller{err: dbus.MakeFailedError(assert.AnError)}
	c := &Client{obj: obj, logger: slog.Default()}

	err := c.RegisterWindow(7, "/MenuBar/7")
	assert.Error(t, err)
}

func TestUnregisterWindow_Success(t *testing.T) {
	obj := &fakeCaller{}
	c := &Client{obj: obj, logger: slog.Default()}

	err := c.UnregisterWindow(7)
	require.NoError(t, err)
	assert.Equal(t, []string{interfName + ".UnregisterWindow"}, obj.calls)
}
