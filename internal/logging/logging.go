// Package logging wires structured, leveled logging used by every
// component instead of ad hoc log.Printf calls.
package logging

import "go.uber.org/zap"

// New builds a production logger for "prod"/"production" environments and a
// human-readable development logger otherwise.
func New(env string) (*zap.Logger, error) {
	if env == "prod" || env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// Component returns a child logger tagged with the owning subsystem, e.g.
// logging.Component(log, "matcher").
func Component(log *zap.Logger, name string) *zap.Logger {
	return log.With(zap.String("component", name))
}
