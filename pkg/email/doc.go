// Package email renders and dispatches the account emails.
//
// Templates are embedded in the binary; an optional override directory
// lets operators adjust copy without a rebuild, with changes picked up
// live by a filesystem watcher. Delivery goes through the Sender
// interface; the production implementation posts to an HTTP mail API.
package email
