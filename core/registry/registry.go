package registry

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Feature is implemented by application modules that register HTTP routes.
type Feature interface {
	// Name returns the unique name of the feature.
	Name() string
	// IsEnabled reports whether the feature should be loaded.
	IsEnabled() bool
	// Load registers the feature's routes on the given router.
	Load(app fiber.Router) error
}

// Manager holds the set of registered features.
type Manager struct {
	features map[string]Feature
	order    []string
	logger   *zap.Logger
}

// NewManager creates an empty feature manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		features: make(map[string]Feature),
		logger:   logger,
	}
}

// Register adds a feature to the manager. Registering two features with the
// same name is a programming error and is rejected.
func (m *Manager) Register(f Feature) error {
	name := f.Name()
	if _, exists := m.features[name]; exists {
		return fmt.Errorf("feature %q already registered", name)
	}
	m.features[name] = f
	m.order = append(m.order, name)
	return nil
}

// LoadAll loads every enabled feature in registration order.
func (m *Manager) LoadAll(app fiber.Router) error {
	for _, name := range m.order {
		f := m.features[name]
		if !f.IsEnabled() {
			m.logger.Info("Feature disabled, skipping", zap.String("feature", name))
			continue
		}
		if err := f.Load(app); err != nil {
			return fmt.Errorf("failed to load feature %q: %w", name, err)
		}
		m.logger.Info("Feature loaded", zap.String("feature", name))
	}
	return nil
}
