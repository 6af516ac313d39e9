package auth

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"projecthub/projecthub/schema"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func verifyRequest(t *testing.T, manager *JwtManager, token string) (int, Actor) {
	t.Helper()

	var actor Actor

	r := chi.NewRouter()
	r.Use(manager.Verifier(), manager.Authenticator())
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		_, claims, err := jwtauth.FromContext(req.Context())
		require.NoError(t, err)

		actor, err = actorFromClaims(claims)
		require.NoError(t, err)
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w.Result().StatusCode, actor
}

func TestJwtRoundTrip(t *testing.T) {
	user := schema.User{
		Id:       uuid.New(),
		Name:     "user1",
		Email:    "user1@mail.com",
		Password: []byte("bcrypt-hash"),
		Role:     "lead",
	}

	manager := NewJwtManager([]byte("test-secret"), time.Hour, nil)

	token, err := manager.CreateUserJwt(user)
	require.NoError(t, err)

	code, actor := verifyRequest(t, manager, token)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, user.Id, actor.Id)
	assert.Equal(t, user.Name, actor.Name)
	assert.Equal(t, user.Email, actor.Email)
	assert.Equal(t, RoleLead, actor.Role)
}

func TestJwtPayloadOmitsPasswordHash(t *testing.T) {
	user := schema.User{
		Id:       uuid.New(),
		Name:     "user1",
		Email:    "user1@mail.com",
		Password: []byte("bcrypt-hash"),
		Role:     "developer",
	}

	manager := NewJwtManager([]byte("test-secret"), time.Hour, nil)

	token, err := manager.CreateUserJwt(user)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)

	assert.NotContains(t, string(payload), "bcrypt-hash")
	assert.NotContains(t, string(payload), "password")
}

func TestExpiredJwtRejected(t *testing.T) {
	user := schema.User{Id: uuid.New(), Email: "user1@mail.com", Role: "developer"}

	secret := []byte("test-secret")
	backdated := NewJwtManager(secret, time.Hour, func() time.Time {
		return time.Now().Add(-2 * time.Hour)
	})

	token, err := backdated.CreateUserJwt(user)
	require.NoError(t, err)

	manager := NewJwtManager(secret, time.Hour, nil)
	code, _ := verifyRequest(t, manager, token)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestJwtWrongSecretRejected(t *testing.T) {
	user := schema.User{Id: uuid.New(), Email: "user1@mail.com", Role: "developer"}

	other := NewJwtManager([]byte("other-secret"), time.Hour, nil)
	token, err := other.CreateUserJwt(user)
	require.NoError(t, err)

	manager := NewJwtManager([]byte("test-secret"), time.Hour, nil)
	code, _ := verifyRequest(t, manager, token)
	assert.Equal(t, http.StatusUnauthorized, code)
}
