package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/change-request-service/internal/domain"
	apperrors "github.com/spec-kit/change-request-service/pkg/util/errorutil"
)

// RequireActor ensures the caller is authenticated.
func RequireActor() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := ActorFromContext(c); !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}

// RequireRole ensures the caller holds at least one of the allowed roles.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, ok := ActorFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if len(allowed) > 0 && !actor.Roles.HasAny(allowed...) {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}
