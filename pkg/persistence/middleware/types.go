// Package middleware wraps snapshot stores with encryption and redaction.
package middleware

import "github.com/aretw0/strata/pkg/ports"

// Middleware allows wrapping a StackStore to add behavior.
type Middleware func(ports.StackStore) ports.StackStore

// Chain wraps store with mws. The first middleware is the outermost.
func Chain(store ports.StackStore, mws ...Middleware) ports.StackStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
