package models

import "context"

// ActorType is the kind of party performing an action.
type ActorType string

const (
	ActorTypeClient   ActorType = "client"
	ActorTypeEmployee ActorType = "employee"
	ActorTypeSystem   ActorType = "system"
)

// Valid reports whether t is a known actor type.
func (t ActorType) Valid() bool {
	switch t {
	case ActorTypeClient, ActorTypeEmployee, ActorTypeSystem:
		return true
	}
	return false
}

// Actor is the authenticated caller on whose behalf the engine acts.
type Actor struct {
	Type  ActorType `json:"type"`
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// RequestContext carries audit fields captured by the transport layer, kept
// apart from any caller-supplied payload.
type RequestContext struct {
	IPAddress string
	UserAgent string
}

type actorKey struct{}

// WithActor stores the actor in ctx.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor stored by WithActor.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
