package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exam-portal/internal/logger"
	"exam-portal/internal/models"
	"exam-portal/pkg/database"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := database.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))
	return NewService(NewRepository(db), "secret", time.Hour, logger.Nop())
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "ama", " Ama@Example.com ", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "ama@example.com", user.Email)
	assert.Equal(t, models.RoleStudent, user.Role)
	assert.NotEqual(t, "correct-horse", user.Password)

	token, err := svc.Login(ctx, "AMA@example.com", "correct-horse")
	require.NoError(t, err)

	claims, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "ama@example.com", claims.Email)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestLogin_Failures(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "ama", "ama@example.com", "correct-horse")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "ama@example.com", "wrong")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))

	_, err = svc.Login(ctx, "nobody@example.com", "correct-horse")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "a", "dup@example.com", "password1")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "b", "DUP@example.com", "password2")
	assert.True(t, errors.Is(err, ErrEmailTaken))
}

func TestEnsureAdmin_CreatesThenPromotes(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureAdmin(ctx, "root@example.com", "first-pass"))
	require.NoError(t, svc.EnsureAdmin(ctx, "root@example.com", "second-pass"))

	token, err := svc.Login(ctx, "root@example.com", "second-pass")
	require.NoError(t, err)
	claims, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestParseToken_RejectsForeignSecret(t *testing.T) {
	svc := newTestService(t)
	other := NewService(nil, "other-secret", time.Hour, logger.Nop())
	token, err := other.IssueToken(&models.User{ID: 1, Email: "x@example.com"})
	require.NoError(t, err)

	_, err = svc.ParseToken(token)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestMiddleware(t *testing.T) {
	svc := newTestService(t)
	student, err := svc.IssueToken(&models.User{ID: 7, Email: "s@example.com", Role: models.RoleStudent})
	require.NoError(t, err)
	admin, err := svc.IssueToken(&models.User{ID: 8, Email: "a@example.com", Role: models.RoleAdmin})
	require.NoError(t, err)

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.Use(JWTMiddleware(svc))
	api.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		c, _ := ClaimsFromContext(r.Context())
		w.Write([]byte(c.Email))
	})
	adminRouter := api.PathPrefix("/admin").Subrouter()
	adminRouter.Use(RequireRole(models.RoleAdmin))
	adminRouter.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})

	tests := []struct {
		name     string
		path     string
		header   string
		wantCode int
		wantBody string
	}{
		{"missing header", "/api/me", "", http.StatusUnauthorized, "authorization header required"},
		{"bad format", "/api/me", "Token abc", http.StatusUnauthorized, "invalid token format"},
		{"bad token", "/api/me", "Bearer abc", http.StatusUnauthorized, "invalid token"},
		{"student ok", "/api/me", "Bearer " + student, http.StatusOK, "s@example.com"},
		{"student forbidden", "/api/admin/ping", "Bearer " + student, http.StatusForbidden, "permission denied"},
		{"admin ok", "/api/admin/ping", "Bearer " + admin, http.StatusOK, "pong"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.True(t, strings.Contains(rec.Body.String(), tt.wantBody), rec.Body.String())
		})
	}
}

func TestHandler_RegisterValidation(t *testing.T) {
	svc := newTestService(t)
	router := mux.NewRouter()
	NewHandler(svc).Register(router.PathPrefix("/api").Subrouter())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(`{"username":"a","email":"not-an-email","password":"short"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"email"`)
	assert.Contains(t, rec.Body.String(), `"password":"min"`)

	req = httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(`{"username":"ama","email":"ama@example.com","password":"long-enough"}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"token"`)
}
