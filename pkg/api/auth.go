package api

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"

	"github.com/labstack/echo/v5"
)

// Permission names.
const (
	PermAnalyze = "analyze"
	PermStream  = "stream"
	PermAdmin   = "admin"
)

const roleContextKey = "auth.role"

// Role is the resolved identity of a request.
type Role struct {
	Name        string
	Permissions map[string]bool
}

// Has reports whether the role holds the permission.
func (r *Role) Has(perm string) bool { return r != nil && r.Permissions[perm] }

func (r *Role) permissionList() []string {
	perms := make([]string, 0, len(r.Permissions))
	for p := range r.Permissions {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	return perms
}

// Authenticator resolves API keys to roles. Keys are hashed with SHA-256 at
// startup; only digests are kept and compared.
type Authenticator struct {
	roles map[string]*Role // keyed by hex digest
}

// NewAuthenticator builds the key table. Empty keys are skipped; when no
// keys are configured at all, every request gets the anonymous role with
// analyze and stream permissions.
func NewAuthenticator(adminKey, userKey string) *Authenticator {
	a := &Authenticator{roles: make(map[string]*Role)}
	if adminKey != "" {
		a.roles[hashKey(adminKey)] = &Role{
			Name:        "admin",
			Permissions: map[string]bool{PermAnalyze: true, PermStream: true, PermAdmin: true},
		}
	}
	if userKey != "" {
		a.roles[hashKey(userKey)] = &Role{
			Name:        "user",
			Permissions: map[string]bool{PermAnalyze: true, PermStream: true},
		}
	}
	return a
}

// Resolve maps a presented key to a role. ok is false when authentication
// fails (keys are configured and the presented key is missing or unknown).
func (a *Authenticator) Resolve(key string) (*Role, bool) {
	if len(a.roles) == 0 {
		return &Role{
			Name:        "anonymous",
			Permissions: map[string]bool{PermAnalyze: true, PermStream: true},
		}, true
	}
	role, ok := a.roles[hashKey(key)]
	return role, ok
}

// Middleware authenticates every request from the X-API-Key header or the
// api_key query parameter and stores the role on the context.
func (a *Authenticator) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			key := c.Request().Header.Get("X-API-Key")
			if key == "" {
				key = c.QueryParam("api_key")
			}
			role, ok := a.Resolve(key)
			if !ok {
				return c.JSON(http.StatusUnauthorized, map[string]any{
					"error": "invalid or missing API key",
				})
			}
			c.Set(roleContextKey, role)
			return next(c)
		}
	}
}

// RequirePermission rejects requests whose role lacks the permission,
// reporting both the required and the held permission sets.
func RequirePermission(perm string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			role := roleFrom(c)
			if !role.Has(perm) {
				return c.JSON(http.StatusForbidden, map[string]any{
					"error":    "insufficient permissions",
					"required": []string{perm},
					"held":     role.permissionList(),
				})
			}
			return next(c)
		}
	}
}

func roleFrom(c *echo.Context) *Role {
	if role, ok := c.Get(roleContextKey).(*Role); ok {
		return role
	}
	return &Role{Name: "none", Permissions: map[string]bool{}}
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
