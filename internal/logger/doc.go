// Package logger provides a simple, thread-safe leveled logger.
//
// Each entry carries a timestamp, a level, an optional scope tag (the
// component that wrote it, such as "pool" or "scenario"), and a printf-style
// message.
//
// # Basic Usage
//
//	logger.Info("", "Application started")
//	logger.Info("pool", "started %d workers", n)
//	logger.Error("api", "Failed: %v", err)
//
// Creating a custom logger:
//
//	l := logger.New(os.Stderr, logger.LevelDebug)
//	l.Debug("worker-1", "Debug message")
//
// Levels can be parsed from configuration with ParseLevel. Discard returns a
// logger that writes nothing, which is handy in tests.
//
// # Thread Safety
//
// All logging operations are protected by a mutex and safe for concurrent use.
package logger
