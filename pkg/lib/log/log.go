// Package log exposes the logger used by the bosync SDK.
//
// Any [Logger] implementation is accepted, [Noop] (the default) discards
// everything. Applications already using logrus can plug their logger with
// [NewLogrus]:
//
//	client, err := lib.New(ctx, lib.Config{
//	    Logger: log.NewLogrus(logrus.NewEntry(logrus.StandardLogger())),
//	})
//
// SDK log lines carry a `svc` field naming the internal component
// (e.g. `app.Schedule`, `storage.SQLite`).
package log

import (
	"github.com/sirupsen/logrus"

	"github.com/slok/bosync/internal/log"
	loglogrus "github.com/slok/bosync/internal/log/logrus"
)

// Logger is the logging interface accepted by the SDK.
type Logger = log.Logger

// Kv are structured logging fields.
type Kv = log.Kv

// Noop discards all log output.
var Noop = log.Noop

// NewLogrus adapts a logrus entry into a [Logger].
func NewLogrus(e *logrus.Entry) Logger {
	return loglogrus.NewLogrus(e)
}
