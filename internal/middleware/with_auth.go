package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/scorestream-api/internal/utils"
)

// Access levels understood by WithAuth.
const (
	AccessAnyUser = "any"
	AccessStudent = RoleStudent
	AccessStaff   = "staff"
)

// AuthOptions configures WithAuth.
type AuthOptions struct {
	Access string
	// AllowAnonymous lets AccessAnyUser handlers run without a subject.
	AllowAnonymous bool
}

// WithAuth guards a single handler by caller identity and role.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	access := normalizeRoleValue(opts.Access)
	if access == "" {
		access = AccessAnyUser
	}
	anonymous := opts.AllowAnonymous && access == AccessAnyUser

	return func(c *fiber.Ctx) error {
		if !anonymous && UserIDFromCtx(c) == "" {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}

		role := UserRoleFromCtx(c)
		switch access {
		case AccessAnyUser:
		case AccessStaff:
			if role != RoleTeacher && role != RoleAdmin {
				return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", fiber.Map{"required": StaffRoles})
			}
		default:
			if role != access {
				return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", fiber.Map{"required": []string{access}})
			}
		}

		return handler(c)
	}
}
