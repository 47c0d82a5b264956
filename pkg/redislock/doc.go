// Package redislock provides a Redis-backed best-effort mutex used to keep
// multiple dispatcher replicas from processing the same webhook batch
// concurrently.
//
// The lock is a single key written with SET NX and a per-locker token; release
// and extension go through Lua scripts that check the token first, so an
// expired lock taken over by another replica cannot be clobbered. It is not a
// consensus primitive: delivery remains at-least-once, and the lock only
// reduces duplicate work, it does not eliminate it.
package redislock
