package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/userstore/internal/auth"
	"github.com/MarcoPoloResearchLab/userstore/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	sessionClaimsContextKey = "userstore_session_claims"
	requestIDHeader         = "X-Request-ID"
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingUserDirectory    = errors.New("user directory dependency required")
)

type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// UserDirectory is the subset of the user repository the HTTP layer needs.
type UserDirectory interface {
	Upsert(ctx context.Context, input users.UserInput) error
	GetByOpenID(ctx context.Context, openID string) (*users.User, error)
}

// DatabaseProbe reports whether a database handle can currently be acquired.
type DatabaseProbe interface {
	Available(ctx context.Context) bool
}

type Dependencies struct {
	SessionValidator SessionValidator
	Users            UserDirectory
	Database         DatabaseProbe
	AllowedOrigins   []string
	Clock            func() time.Time
	Logger           *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Users == nil {
		return nil, errMissingUserDirectory
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions: deps.SessionValidator,
		users:    deps.Users,
		database: deps.Database,
		clock:    clock,
		logger:   logger,
	}

	router.GET("/healthz", handler.handleHealth)

	protected := router.Group("/auth")
	protected.Use(handler.authorizeRequest)
	protected.POST("/session", handler.handleSignIn)
	protected.GET("/me", handler.handleCurrentUser)

	return router, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", requestIDHeader},
		ExposeHeaders:    []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

type httpHandler struct {
	sessions SessionValidator
	users    UserDirectory
	database DatabaseProbe
	clock    func() time.Time
	logger   *zap.Logger
}

type userResponsePayload struct {
	OpenID       string  `json:"open_id"`
	Name         *string `json:"name,omitempty"`
	Email        *string `json:"email,omitempty"`
	LoginMethod  *string `json:"login_method,omitempty"`
	Role         *string `json:"role,omitempty"`
	IsAdmin      bool    `json:"is_admin"`
	LastSignedIn int64   `json:"last_signed_in_s"`
}

func newUserResponse(user *users.User) userResponsePayload {
	return userResponsePayload{
		OpenID:       user.OpenID,
		Name:         user.Name,
		Email:        user.Email,
		LoginMethod:  user.LoginMethod,
		Role:         user.Role,
		IsAdmin:      user.IsAdmin(),
		LastSignedIn: user.LastSignedIn.Unix(),
	}
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	status := "unavailable"
	if h.database != nil && h.database.Available(c.Request.Context()) {
		status = "available"
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": status})
}

// handleSignIn records a sign-in for the session identity and returns the stored user.
func (h *httpHandler) handleSignIn(c *gin.Context) {
	claims, ok := sessionClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	signedInAt := h.clock().UTC()
	input := users.UserInput{
		OpenID:       claims.Identity(),
		Name:         claims.Name,
		Email:        claims.Email,
		LoginMethod:  claims.LoginMethod,
		LastSignedIn: &signedInAt,
	}
	if err := h.users.Upsert(c.Request.Context(), input); err != nil {
		h.logger.Error("failed to record sign-in", zap.String("open_id", input.OpenID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upsert_failed"})
		return
	}

	user, err := h.users.GetByOpenID(c.Request.Context(), input.OpenID)
	if err != nil {
		h.logger.Error("failed to load user after sign-in", zap.String("open_id", input.OpenID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}
	if user == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "user_unavailable"})
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}

func (h *httpHandler) handleCurrentUser(c *gin.Context) {
	claims, ok := sessionClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	user, err := h.users.GetByOpenID(c.Request.Context(), claims.Identity())
	if err != nil {
		h.logger.Error("failed to load current user", zap.String("open_id", claims.Identity()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user_not_found"})
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(sessionClaimsContextKey, claims)
	c.Next()
}

func sessionClaimsFrom(c *gin.Context) (auth.SessionClaims, bool) {
	value, exists := c.Get(sessionClaimsContextKey)
	if !exists {
		return auth.SessionClaims{}, false
	}
	claims, ok := value.(auth.SessionClaims)
	if !ok || claims.Identity() == "" {
		return auth.SessionClaims{}, false
	}
	return claims, true
}
