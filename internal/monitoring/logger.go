// Package monitoring carries the shared diagnostic logger used across
// the tracking pipeline.
package monitoring

import "log"

// Logf is the pipeline-wide diagnostic logger. It defaults to
// log.Printf; tests and embedding applications can redirect or mute it
// with SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger swaps the package logger. A nil argument installs a no-op
// logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
