// Package async provides safe concurrent execution primitives for
// fire-and-forget background work.
//
// SafeGo executes a function in a goroutine with panic recovery, a
// per-task timeout, and error logging:
//
//	async.SafeGo(ctx, 5*time.Second, "last-login update", func(ctx context.Context) error {
//		return store.TouchLastLogin(ctx, identityID)
//	})
//
// Use this instead of a bare `go func()` so a panicking task cannot crash
// the process and a hung task cannot leak a goroutine.
//
// # Use Cases
//
// Post-sign-in lastLoginAt updates, deferred email dispatch, cache warming.
package async
