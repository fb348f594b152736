// Package reconcile runs periodic consistency sweeps.
//
// Blocking an account revokes its sessions inline, but that call is
// best-effort: the provider may be down at that moment. The sweep
// re-revokes sessions for every blocked account on a schedule so no
// blocked account keeps a live session for long.
package reconcile
