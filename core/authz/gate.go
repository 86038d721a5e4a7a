// Package authz decides whether a principal may subscribe to a destination.
package authz

import (
	"strings"
	"time"
)

// DefaultNamespace is the destination prefix open to authenticated principals.
const DefaultNamespace = "/topic/"

// Principal is the identity attached to a subscriber connection.
type Principal struct {
	Subject       string
	Authenticated bool
	// ExpiresAt is the credential expiry, zero when it never expires.
	ExpiresAt time.Time
}

// Anonymous is the principal of an unauthenticated connection.
var Anonymous = Principal{}

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Gate authorizes subscriptions.
type Gate interface {
	Authorize(p Principal, destination string) Decision
}

// NamespaceGate allows authenticated principals to subscribe to any
// destination under its namespace and denies everything else.
type NamespaceGate struct {
	namespace string
}

// NewNamespaceGate returns a gate for namespace, DefaultNamespace when empty.
// The namespace always ends with a slash.
func NewNamespaceGate(namespace string) *NamespaceGate {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if !strings.HasSuffix(namespace, "/") {
		namespace += "/"
	}
	return &NamespaceGate{namespace: namespace}
}

// Namespace returns the guarded prefix.
func (g *NamespaceGate) Namespace() string { return g.namespace }

// Authorize applies the rules in order, first match wins.
func (g *NamespaceGate) Authorize(p Principal, destination string) Decision {
	switch {
	case strings.TrimSpace(destination) == "":
		return Decision{Reason: "empty destination"}
	case strings.HasPrefix(destination, g.namespace):
		if p.Authenticated {
			return Decision{Allowed: true, Reason: "authenticated"}
		}
		return Decision{Reason: "authentication required"}
	default:
		return Decision{Reason: "destination outside " + g.namespace}
	}
}

// GateFunc adapts a function to Gate.
type GateFunc func(p Principal, destination string) Decision

func (f GateFunc) Authorize(p Principal, destination string) Decision { return f(p, destination) }
