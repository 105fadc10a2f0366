package domain

import "errors"

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrSealed is returned when a sealed snapshot is read without the key that
// opens it.
var ErrSealed = errors.New("snapshot is sealed")
