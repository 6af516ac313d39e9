package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"projecthub/projecthub/schema"
	"projecthub/utils"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
)

// JwtManager signs and verifies the session tokens. The signing key and
// clock are injected at construction so nothing here is process-global.
type JwtManager struct {
	auth *jwtauth.JWTAuth
	ttl  time.Duration
	now  func() time.Time
}

func NewJwtManager(secret []byte, ttl time.Duration, clock func() time.Time) *JwtManager {
	if clock == nil {
		clock = time.Now
	}
	return &JwtManager{auth: jwtauth.New("HS256", secret, nil), ttl: ttl, now: clock}
}

func (m *JwtManager) Verifier() func(http.Handler) http.Handler {
	return jwtauth.Verifier(m.auth)
}

// Authenticator rejects requests without a valid bearer token. It mirrors
// jwtauth.Authenticator but writes the standard response envelope.
func (m *JwtManager) Authenticator() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			token, _, err := jwtauth.FromContext(r.Context())
			if err != nil {
				if errors.Is(err, jwtauth.ErrNoTokenFound) {
					utils.HttpError(w, "authentication required", http.StatusUnauthorized)
				} else {
					utils.HttpError(w, "invalid or expired token", http.StatusUnauthorized)
				}
				return
			}
			if token == nil {
				utils.HttpError(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}

const (
	claimUserId = "user_id"
	claimName   = "name"
	claimEmail  = "email"
	claimRole   = "role"
)

// CreateUserJwt issues a token embedding the sanitized user identity. The
// password hash never enters the claims.
func (m *JwtManager) CreateUserJwt(user schema.User) (string, error) {
	claims := map[string]interface{}{
		claimUserId: user.Id.String(),
		claimName:   user.Name,
		claimEmail:  user.Email,
		claimRole:   user.Role,
		"exp":       m.now().Add(m.ttl),
	}
	_, token, err := m.auth.Encode(claims)
	if err != nil {
		slog.Error("error generating jwt", "error", err)
		return "", fmt.Errorf("error generating access token: %w", err)
	}
	return token, nil
}

func stringClaim(claims map[string]interface{}, key string) (string, error) {
	valueUncasted, ok := claims[key]
	if !ok {
		return "", fmt.Errorf("invalid token: unable to locate key %v in claims", key)
	}

	value, ok := valueUncasted.(string)
	if !ok {
		return "", fmt.Errorf("invalid token: value for key %v has invalid type", key)
	}

	return value, nil
}

func actorFromClaims(claims map[string]interface{}) (Actor, error) {
	userId, err := stringClaim(claims, claimUserId)
	if err != nil {
		return Actor{}, err
	}
	userUUID, err := uuid.Parse(userId)
	if err != nil {
		return Actor{}, fmt.Errorf("invalid user uuid '%v': %w", userId, err)
	}

	name, err := stringClaim(claims, claimName)
	if err != nil {
		return Actor{}, err
	}
	email, err := stringClaim(claims, claimEmail)
	if err != nil {
		return Actor{}, err
	}

	roleValue, err := stringClaim(claims, claimRole)
	if err != nil {
		return Actor{}, err
	}
	role, err := ParseRole(roleValue)
	if err != nil {
		return Actor{}, fmt.Errorf("invalid token: %w", err)
	}

	return Actor{Id: userUUID, Name: name, Email: email, Role: role}, nil
}

type requestContextKey string

const actorRequestContextKey requestContextKey = "actor"

func ActorFromContext(r *http.Request) (Actor, error) {
	actorUntyped := r.Context().Value(actorRequestContextKey)
	if actorUntyped == nil {
		return Actor{}, fmt.Errorf("actor field not found in request context")
	}
	actor, ok := actorUntyped.(Actor)
	if !ok {
		return Actor{}, fmt.Errorf("invalid value for actor field")
	}
	return actor, nil
}
