// Package logger provides the zap logger factory for the application.
//
// Logs are emitted as structured JSON in production or colorized console
// output during development, controlled by the log configuration. The
// WithRayID helper attaches the per-request ray id so that every log line
// produced while serving a request can be correlated.
package logger
