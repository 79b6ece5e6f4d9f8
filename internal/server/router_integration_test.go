package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/userstore/internal/auth"
	"github.com/MarcoPoloResearchLab/userstore/internal/database"
	"github.com/MarcoPoloResearchLab/userstore/internal/server"
	"github.com/MarcoPoloResearchLab/userstore/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	sessionSigningSecret = "integration-secret"
	sessionCookieName    = "app_session"
	sessionIssuer        = "userstore"
	ownerOpenID          = "owner-123"
)

type userPayload struct {
	OpenID  string  `json:"open_id"`
	Name    *string `json:"name"`
	Email   *string `json:"email"`
	Role    *string `json:"role"`
	IsAdmin bool    `json:"is_admin"`
}

func TestSignInAndCurrentUserFlow(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	databasePath := filepath.Join(testContext.TempDir(), "users.db")
	provider := database.NewProvider(database.ProviderConfig{
		URL:    func() string { return databasePath },
		Logger: zap.NewNop(),
	})
	testContext.Cleanup(func() { _ = provider.Close() })

	db, err := provider.Acquire(testContext.Context())
	if err != nil {
		testContext.Fatalf("failed to acquire database: %v", err)
	}
	if _, err := database.ApplyMigrations(db, zap.NewNop(), []database.Migration{
		database.AutoMigrateStep("create_users", &users.User{}),
	}); err != nil {
		testContext.Fatalf("failed to migrate: %v", err)
	}

	repository, err := users.NewRepository(users.RepositoryConfig{
		Connections: provider,
		OwnerOpenID: ownerOpenID,
		Logger:      zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build repository: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(sessionSigningSecret),
		Issuer:        sessionIssuer,
		CookieName:    sessionCookieName,
	})
	if err != nil {
		testContext.Fatalf("failed to construct session validator: %v", err)
	}
	issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
		SigningSecret: []byte(sessionSigningSecret),
		Issuer:        sessionIssuer,
		TTL:           time.Hour,
	})
	if err != nil {
		testContext.Fatalf("failed to construct session issuer: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		SessionValidator: validator,
		Users:            repository,
		Database:         provider,
		Logger:           zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}
	testServer := httptest.NewServer(handler)
	defer testServer.Close()

	name := "Ada"
	email := "ada@example.com"

	firstToken := mustIssue(testContext, issuer, auth.SessionProfile{OpenID: "user-1", Name: &name})
	signedIn := mustCall(testContext, testServer.URL, http.MethodPost, "/auth/session", firstToken, http.StatusOK)
	if signedIn.OpenID != "user-1" || signedIn.Name == nil || *signedIn.Name != name || signedIn.Role != nil {
		testContext.Fatalf("unexpected first sign-in payload: %+v", signedIn)
	}

	secondToken := mustIssue(testContext, issuer, auth.SessionProfile{OpenID: "user-1", Email: &email})
	mustCall(testContext, testServer.URL, http.MethodPost, "/auth/session", secondToken, http.StatusOK)

	current := mustCall(testContext, testServer.URL, http.MethodGet, "/auth/me", secondToken, http.StatusOK)
	if current.Name == nil || *current.Name != name || current.Email == nil || *current.Email != email {
		testContext.Fatalf("expected merged profile, got %+v", current)
	}

	ownerToken := mustIssue(testContext, issuer, auth.SessionProfile{OpenID: ownerOpenID})
	owner := mustCall(testContext, testServer.URL, http.MethodPost, "/auth/session", ownerToken, http.StatusOK)
	if !owner.IsAdmin {
		testContext.Fatalf("expected owner to be admin, got %+v", owner)
	}

	strangerToken := mustIssue(testContext, issuer, auth.SessionProfile{OpenID: "stranger"})
	mustCall(testContext, testServer.URL, http.MethodGet, "/auth/me", strangerToken, http.StatusNotFound)

	var count int64
	if err := db.Model(&users.User{}).Count(&count).Error; err != nil {
		testContext.Fatalf("failed to count users: %v", err)
	}
	if count != 2 {
		testContext.Fatalf("expected two stored users, got %d", count)
	}
}

func mustIssue(testContext *testing.T, issuer *auth.SessionIssuer, profile auth.SessionProfile) string {
	testContext.Helper()
	token, _, err := issuer.Issue(profile)
	if err != nil {
		testContext.Fatalf("failed to issue session: %v", err)
	}
	return token
}

func mustCall(testContext *testing.T, baseURL, method, path, token string, expectedStatus int) userPayload {
	testContext.Helper()
	request, err := http.NewRequest(method, baseURL+path, http.NoBody)
	if err != nil {
		testContext.Fatalf("failed to build request: %v", err)
	}
	request.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})

	response, err := http.DefaultClient.Do(request)
	if err != nil {
		testContext.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer response.Body.Close()

	if response.StatusCode != expectedStatus {
		testContext.Fatalf("%s %s: expected status %d, got %d", method, path, expectedStatus, response.StatusCode)
	}
	var payload userPayload
	if expectedStatus == http.StatusOK {
		if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
			testContext.Fatalf("failed to decode response: %v", err)
		}
	}
	return payload
}
