// Package logx is a thin zerolog wrapper with hot-reloadable sinks.
//
// It provides:
//   - A value-type Logger that is safe to copy and cheap to derive (With).
//   - A Service that owns the output sinks (console, file) and can swap
//     level/outputs at runtime via Apply() without invalidating loggers
//     handed out earlier.
//   - Functional Field helpers (String, Int64, Err, ...) so call sites stay
//     structured without importing zerolog directly.
package logx
