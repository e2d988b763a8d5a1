// Package logging constructs the process-wide zap logger. Components never
// reach for zap.L(); main builds one *zap.Logger and threads it explicitly.
package logging

import "go.uber.org/zap"

// New builds a development logger (console-friendly, debug level) or a
// production logger (JSON, info level) depending on env.
func New(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// ForJob returns a child logger scoped to a single job, carrying job_id and
// recipe fields on every line it emits.
func ForJob(base *zap.Logger, jobID, recipe string) *zap.Logger {
	return base.With(zap.String("job_id", jobID), zap.String("recipe", recipe))
}
