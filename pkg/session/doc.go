/*
Package session serializes access to stored filter stacks.

A Manager wraps a ports.StackStore with per-session locks, reference counted so
idle sessions leave nothing behind, and optionally a ports.DistributedLocker
when several processes share one store.
*/
package session
