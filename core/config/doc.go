// Package config loads application configuration from environment
// variables and an optional .env file.
//
// Defaults are declared as struct tags on the partial config types owned
// by each package and bound into viper via reflection, so a package's
// configuration lives next to the code that consumes it.
package config
