package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/internal/documents"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

type contextKey string

const (
	ctxActorID contextKey = "actor_id"
	ctxRole    contextKey = "actor_role"
)

func ActorIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxActorID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

// WithActor injects the authenticated principal into the context.
func WithActor(ctx context.Context, actorID uuid.UUID, role enums.ActorRole) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxActorID, actorID.String())
	return context.WithValue(ctx, ctxRole, string(role))
}

// ActorFromContext converts the authenticated principal into the document
// service's actor. Missing or malformed values yield the zero actor, which
// the service rejects as unauthorized.
func ActorFromContext(ctx context.Context) documents.Actor {
	var actor documents.Actor
	if id, err := uuid.Parse(ActorIDFromContext(ctx)); err == nil {
		actor.ID = id
	}
	if role, err := enums.ParseActorRole(RoleFromContext(ctx)); err == nil {
		actor.Role = role
	}
	return actor
}
