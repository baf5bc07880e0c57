// Package context holds the request-scoped values shared by the transport
// and logging layers.
package context

type contextKey string
