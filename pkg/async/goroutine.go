package async

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
)

// logger is the package-level logger for background task failures. It is a
// variable so tests can capture output.
var logger = logrus.StandardLogger()

// SetLogger replaces the logger used for task failures.
func SetLogger(l *logrus.Logger) {
	if l != nil {
		logger = l
	}
}

// SafeGo executes a function in a goroutine with:
//   - Context cancellation support
//   - Panic recovery
//   - Timeout enforcement
//   - Error logging
//
// The parent context's values (request ID, identity) propagate into the
// task; its cancellation does not outlive the timeout.
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(logrus.Fields{
					"task":  taskName,
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("panic in background task")
			}
		}()

		if err := fn(ctx); err != nil {
			logger.WithFields(logrus.Fields{
				"task":  taskName,
				"error": err.Error(),
			}).Error("background task failed")
		}
	}()
}

// SafeGoDetached is like SafeGo but detaches from the parent context's
// cancellation, keeping only its values. Use for work that must complete
// even when the originating request has already returned (for example the
// post-sign-in lastLoginAt update).
func SafeGoDetached(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	SafeGo(context.WithoutCancel(parentCtx), timeout, taskName, fn)
}
