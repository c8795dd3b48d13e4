// Package logging wires structured logging for the bench controller.
//
// It is a thin veneer over log/slog: New reads the logging section of
// config.yaml and produces a *Logger whose records all carry service
// and version attributes. Components derive child loggers with With so
// a single attribute filter can isolate one subsystem's output:
//
//	log := logging.New(cfg.Logging, version)
//	rigLog := log.With("component", "rig")
//
// Format "json" (the default) emits one JSON object per record for log
// shippers; "text" is easier on the eyes during bench bring-up. Output
// may be "stdout" or "stderr". Levels follow slog: debug, info, warn
// and error, with unrecognised values treated as info.
//
// Instrument traffic can embed calibration identifiers and operator
// notes, so avoid dumping raw frames wholesale at info level. Keep
// byte-level traces at debug.
package logging
