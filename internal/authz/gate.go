// Package authz decides whether a GraphQL operation may run without an
// authenticated principal.
package authz

import (
	"context"

	"github.com/congo-pay/authgraph/internal/auth"
	"github.com/congo-pay/authgraph/internal/autherr"
)

// Kind is the GraphQL operation type.
type Kind string

const (
	KindQuery        Kind = "query"
	KindMutation     Kind = "mutation"
	KindSubscription Kind = "subscription"
)

// Operation is the part of a request the gate looks at.
type Operation struct {
	Kind       Kind
	Name       string
	RootFields []string
}

// AllowList maps an operation kind to the root fields callable anonymously.
type AllowList map[Kind]map[string]struct{}

// Allow adds fields to the list for kind.
func (a AllowList) Allow(kind Kind, fields ...string) AllowList {
	set, ok := a[kind]
	if !ok {
		set = make(map[string]struct{}, len(fields))
		a[kind] = set
	}
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return a
}

// Allows reports whether field is public for kind.
func (a AllowList) Allows(kind Kind, field string) bool {
	_, ok := a[kind][field]
	return ok
}

// DefaultAllowList is registration, the login mutations, me and introspection.
func DefaultAllowList() AllowList {
	return AllowList{}.
		Allow(KindMutation, "register", "login", "loginWithMfa", "loginWithMFA", "__typename").
		Allow(KindQuery, "me", "__schema", "__type", "__typename")
}

// Gate runs once per operation before any resolver.
type Gate struct {
	public AllowList
}

// NewGate builds a gate; a nil list means DefaultAllowList.
func NewGate(public AllowList) *Gate {
	if public == nil {
		public = DefaultAllowList()
	}
	return &Gate{public: public}
}

// IsPublic reports whether every root field of op is on the allow-list.
func (g *Gate) IsPublic(op Operation) bool {
	if len(op.RootFields) == 0 {
		return false
	}
	for _, f := range op.RootFields {
		if !g.public.Allows(op.Kind, f) {
			return false
		}
	}
	return true
}

// Authorize lets public operations through and requires a verified
// principal on ctx for everything else.
func (g *Gate) Authorize(ctx context.Context, op Operation) error {
	if g.IsPublic(op) {
		return nil
	}
	if _, ok := auth.PrincipalFrom(ctx); ok {
		return nil
	}
	return autherr.ErrAuthenticationRequired
}
