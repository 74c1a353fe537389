// Package middleware provides HTTP middleware: authentication, request IDs,
// and rate limiting.
package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"basehub/internal/domain"
)

// Capability is the authenticated identity of a request: which tenant it may
// touch and with which database role.
type Capability struct {
	TenantID domain.TenantID
	Role     domain.Role
}

type capabilityKey struct{}

// WithCapability stores the capability in the context.
func WithCapability(ctx context.Context, cap Capability) context.Context {
	return context.WithValue(ctx, capabilityKey{}, cap)
}

// CapabilityFromContext extracts the capability from the context.
func CapabilityFromContext(ctx context.Context) (Capability, bool) {
	cap, ok := ctx.Value(capabilityKey{}).(Capability)
	return cap, ok
}

// Authenticator resolves request credentials to a tenant capability. Bearer
// JWTs are tried first, then API keys.
type Authenticator struct {
	jwtSecret []byte
	keys      domain.APIKeyRepository
	logger    *slog.Logger
}

// NewAuthenticator creates an Authenticator. An empty secret disables JWT
// auth; a nil repository disables API key auth.
func NewAuthenticator(jwtSecret string, keys domain.APIKeyRepository, logger *slog.Logger) *Authenticator {
	var secret []byte
	if jwtSecret != "" {
		secret = []byte(jwtSecret)
	}
	return &Authenticator{jwtSecret: secret, keys: keys, logger: logger}
}

// Middleware authenticates the request and stores the resulting capability in
// the context. Returns 401 when no credential resolves.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cap, ok := a.fromBearer(r); ok {
				next.ServeHTTP(w, r.WithContext(WithCapability(r.Context(), cap)))
				return
			}
			if cap, ok := a.fromAPIKey(r); ok {
				next.ServeHTTP(w, r.WithContext(WithCapability(r.Context(), cap)))
				return
			}
			writeAuthError(w, http.StatusUnauthorized, "unauthorized: provide a valid JWT Bearer token or API key")
		})
	}
}

// fromBearer validates an HS256 JWT. The "sub" claim names the tenant and the
// optional "role" claim selects the database role (default owner, since JWTs
// are the admin credential).
func (a *Authenticator) fromBearer(r *http.Request) (Capability, bool) {
	auth := r.Header.Get("Authorization")
	if len(a.jwtSecret) == 0 || !strings.HasPrefix(auth, "Bearer ") {
		return Capability{}, false
	}
	tokenStr := strings.TrimPrefix(auth, "Bearer ")

	token, err := jwt.Parse(tokenStr, func(*jwt.Token) (interface{}, error) {
		return a.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return Capability{}, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Capability{}, false
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Capability{}, false
	}

	role := domain.RoleOwner
	if v, ok := claims["role"].(string); ok {
		role = domain.Role(v)
		if !role.Valid() {
			return Capability{}, false
		}
	}
	return Capability{TenantID: domain.TenantID(sub), Role: role}, true
}

// fromAPIKey hashes the presented key and looks it up. The raw key is never
// stored or logged.
func (a *Authenticator) fromAPIKey(r *http.Request) (Capability, bool) {
	apiKey := r.Header.Get("X-API-Key")
	if apiKey == "" || a.keys == nil {
		return Capability{}, false
	}
	hash := sha256.Sum256([]byte(apiKey))

	key, err := a.keys.GetByHash(r.Context(), hex.EncodeToString(hash[:]))
	if err != nil {
		return Capability{}, false
	}
	return Capability{TenantID: key.TenantID, Role: key.Role}, true
}

// RequireRole guards a route subtree: the authenticated capability must carry
// exactly the given role. Owner credentials do not implicitly satisfy app
// routes or vice versa.
func RequireRole(role domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cap, ok := CapabilityFromContext(r.Context())
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if cap.Role != role {
				writeAuthError(w, http.StatusForbidden, "this operation requires the "+string(role)+" role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IssueToken signs an HS256 admin JWT for a tenant. Used by the CLI.
func IssueToken(secret string, tenantID domain.TenantID, role domain.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  string(tenantID),
		"role": string(role),
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}

// HashAPIKey returns the sha256 hex digest stored for an API key.
func HashAPIKey(rawKey string) string {
	hash := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(hash[:])
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    status,
		"message": message,
	})
}
