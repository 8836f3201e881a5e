package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowledgehub/kms-backend/pkg/actor"
	"github.com/knowledgehub/kms-backend/pkg/auth"
	"github.com/knowledgehub/kms-backend/pkg/config"
)

func newManager() *auth.Manager {
	return auth.NewManager(&config.JWTConfig{
		Secret: "test-secret",
		Issuer: "kms",
	})
}

func TestManager_IssueAndVerify(t *testing.T) {
	m := newManager()

	a := &actor.Actor{ID: "user-1", Name: "Jane Doe", Email: "jane@example.com", Role: "editor"}
	token, err := m.Issue(a, time.Minute)
	require.NoError(t, err)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "Jane Doe", claims.Name)
	assert.Equal(t, "editor", claims.Role)

	got := claims.Actor()
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, a.Email, got.Email)
}

func TestManager_VerifyRejectsExpired(t *testing.T) {
	m := newManager()

	token, err := m.Issue(&actor.Actor{ID: "user-1"}, -time.Minute)
	require.NoError(t, err)

	_, err = m.Verify(token)
	require.Error(t, err)
}

func TestManager_VerifyRejectsWrongSecret(t *testing.T) {
	other := auth.NewManager(&config.JWTConfig{Secret: "other-secret", Issuer: "kms"})
	token, err := other.Issue(&actor.Actor{ID: "user-1"}, time.Minute)
	require.NoError(t, err)

	_, err = newManager().Verify(token)
	require.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	m := newManager()

	var captured *actor.Actor
	handler := m.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = actor.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid token passes actor through", func(t *testing.T) {
		token, err := m.Issue(&actor.Actor{ID: "user-9", Name: "Sam", Email: "sam@example.com"}, time.Minute)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/documents", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, captured)
		assert.Equal(t, "user-9", captured.ID)
	})

	t.Run("missing token is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/documents", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/documents", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
