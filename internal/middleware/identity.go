package middleware

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/authgraph/internal/auth"
	"github.com/congo-pay/authgraph/internal/identity"
)

// UserLookup resolves a verified principal to a profile.
type UserLookup interface {
	FindByID(ctx context.Context, id string) (identity.Profile, error)
}

// Identity resolves the bearer token once per request. A verified token
// puts the principal and, when the account still exists, its profile on the
// user context. It never rejects a request; the GraphQL gate decides.
func Identity(tokens *auth.Issuer, users UserLookup, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Get(fiber.HeaderAuthorization)
		if raw == "" {
			return c.Next()
		}

		ctx := c.UserContext()
		principal, err := tokens.Verify(raw)
		if err != nil {
			logger.DebugContext(ctx, "ignoring invalid bearer token")
			return c.Next()
		}
		ctx = auth.WithPrincipal(ctx, principal)

		profile, err := users.FindByID(ctx, principal.UserID)
		switch {
		case err == nil:
			ctx = identity.WithUser(ctx, profile)
		case errors.Is(err, identity.ErrNotFound):
			logger.DebugContext(ctx, "token subject not found", slog.String("user_id", principal.UserID))
		default:
			logger.WarnContext(ctx, "resolve token subject", slog.String("user_id", principal.UserID), slog.Any("error", err))
		}

		c.Locals("user_id", principal.UserID)
		c.SetUserContext(ctx)
		return c.Next()
	}
}
