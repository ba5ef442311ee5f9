package middleware

import (
	"net/http"
	"strings"

	"github.com/Skotchmaster/marketplace/pkg/tokens"
	"github.com/labstack/echo/v4"
)

const SessionCookie = "__session"

type SessionMiddleware struct {
	Verifier *tokens.Verifier
}

func NewSessionMiddleware(v *tokens.Verifier) *SessionMiddleware {
	return &SessionMiddleware{Verifier: v}
}

// RequireAuth accepts the session token either as a bearer token or as the
// identity provider's session cookie.
func (m *SessionMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := bearerToken(c.Request())
		if raw == "" {
			if ck, err := c.Cookie(SessionCookie); err == nil {
				raw = ck.Value
			}
		}
		if raw == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing session token")
		}

		claims, err := m.Verifier.Parse(raw)
		if err != nil || claims == nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid session token")
		}

		setUserContext(c, claims)
		return next(c)
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get(echo.HeaderAuthorization)
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func setUserContext(c echo.Context, claims *tokens.SessionClaims) {
	c.Set("user_id", claims.Subject)
	c.Set("email", claims.Email)
}

func UserID(c echo.Context) string {
	v, _ := c.Get("user_id").(string)
	return v
}

func Email(c echo.Context) string {
	v, _ := c.Get("email").(string)
	return v
}
