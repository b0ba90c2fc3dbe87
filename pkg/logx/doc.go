// Package logx configures folionotify's structured logging.
//
// It wraps zerolog behind a small Logger facade so call sites do not
// depend on the sink layout. The Service owns the sinks (console, file)
// and can swap them at runtime via Apply() when the config reloads;
// Loggers handed out earlier keep working against the new sinks.
package logx
