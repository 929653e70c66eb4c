package account

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"

	"github.com/imssbienestar/medicos/internal/platform/apperr"
	"github.com/imssbienestar/medicos/internal/platform/auth"
)

// passwordChangePaths stay reachable while an account must change its
// password.
var passwordChangePaths = map[string]bool{
	"/api/users/me":                 true,
	"/api/users/me/change-password": true,
	"/api/logout":                   true,
}

// SessionGuard checks a token's account against the users table on every
// authenticated request. A deleted account or a role that no longer matches
// the token gets 401. An account with a pending password change gets 403
// outside passwordChangePaths. Requests without a token ID (the development
// identity) pass through.
func (s *Service) SessionGuard() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if jti, _ := auth.TokenFromContext(ctx); jti == "" {
				return next(c)
			}
			id, err := callerID(ctx)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid session")
			}
			u, err := s.repo.GetByID(ctx, id)
			if apperr.Is(err, apperr.KindNotFound) {
				return echo.NewHTTPError(http.StatusUnauthorized, "account no longer exists")
			}
			if err != nil {
				return apperr.ToHTTP(err)
			}
			if !slices.Contains(auth.RolesFromContext(ctx), u.Role) {
				return echo.NewHTTPError(http.StatusUnauthorized, "role changed, sign in again")
			}
			if u.MustChangePassword && !passwordChangePaths[c.Path()] {
				return echo.NewHTTPError(http.StatusForbidden, "password change required")
			}
			return next(c)
		}
	}
}
