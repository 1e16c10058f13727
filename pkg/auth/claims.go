// Package auth mints and verifies the HS256 bearer tokens that identify
// ledger actors. The token subject carries the actor id.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

// Claims is the JWT body.
type Claims struct {
	Role enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller behind a token.
type Principal struct {
	ActorID   uuid.UUID
	Role      enums.ActorRole
	TokenID   string
	ExpiresAt time.Time
}
