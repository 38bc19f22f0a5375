// Package registry provides the plugin-like feature loading system.
//
// It allows the application to register and initialize features (modules) dynamically.
// Each feature implements the Feature interface, which defines its lifecycle hooks
// and route registration logic.
//
// The Manager struct holds the set of available features. It handles
// registration via Register() and initialization of enabled features via
// LoadAll(). This keeps modules like 'catalog' developed and tested in
// isolation from the server wiring.
package registry
