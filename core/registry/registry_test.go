package registry

import (
	"errors"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFeature struct {
	name    string
	enabled bool
	loadErr error
	loaded  bool
}

func (f *fakeFeature) Name() string    { return f.name }
func (f *fakeFeature) IsEnabled() bool { return f.enabled }
func (f *fakeFeature) Load(app fiber.Router) error {
	f.loaded = true
	return f.loadErr
}

func TestRegisterDuplicate(t *testing.T) {
	mgr := NewManager(nil)

	require.NoError(t, mgr.Register(&fakeFeature{name: "catalog", enabled: true}))
	err := mgr.Register(&fakeFeature{name: "catalog", enabled: true})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestLoadAllSkipsDisabled(t *testing.T) {
	mgr := NewManager(nil)
	enabled := &fakeFeature{name: "catalog", enabled: true}
	disabled := &fakeFeature{name: "extras", enabled: false}

	require.NoError(t, mgr.Register(enabled))
	require.NoError(t, mgr.Register(disabled))

	app := fiber.New()
	require.NoError(t, mgr.LoadAll(app))

	assert.True(t, enabled.loaded)
	assert.False(t, disabled.loaded)
}

func TestLoadAllPropagatesError(t *testing.T) {
	mgr := NewManager(nil)
	boom := errors.New("boom")
	require.NoError(t, mgr.Register(&fakeFeature{name: "catalog", enabled: true, loadErr: boom}))

	app := fiber.New()
	err := mgr.LoadAll(app)

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
