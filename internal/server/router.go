package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/keepnote/internal/auth"
	"github.com/MarcoPoloResearchLab/keepnote/internal/notes"
	"github.com/MarcoPoloResearchLab/keepnote/internal/requests"
	"github.com/MarcoPoloResearchLab/keepnote/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	userIDContextKey = "keepnote_user_id"
	claimsContextKey = "keepnote_claims"
)

var (
	errMissingVerifier        = errors.New("token verifier dependency required")
	errMissingNotesService    = errors.New("notes service dependency required")
	errMissingRequestsService = errors.New("requests service dependency required")
	errInvalidAuthorization   = errors.New("authorization header missing or invalid")
)

type Dependencies struct {
	Verifier        auth.TokenVerifier
	NotesService    *notes.Service
	RequestsService *requests.Service
	UsersService    *users.Service
	Realtime        *RealtimeDispatcher
	AllowedOrigins  []string
	Logger          *zap.Logger
	Clock           func() time.Time
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Verifier == nil {
		return nil, errMissingVerifier
	}
	if deps.NotesService == nil {
		return nil, errMissingNotesService
	}
	if deps.RequestsService == nil {
		return nil, errMissingRequestsService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(accessLogMiddleware(logger))
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		verifier:        deps.Verifier,
		notesService:    deps.NotesService,
		requestsService: deps.RequestsService,
		usersService:    deps.UsersService,
		realtime:        realtime,
		logger:          logger,
		clock:           clock,
	}

	router.GET("/healthz", handler.handleHealth)

	api := router.Group("/api/notes")
	api.Use(handler.authorizeRequest)
	api.GET("", handler.handleListNotes)
	api.GET("/archived", handler.handleListArchived)
	api.GET("/pinned", handler.handleListPinned)
	api.POST("", handler.handleCreateNote)
	api.PUT("/:id", handler.handleUpdateNote)
	api.DELETE("/:id", handler.handleDeleteNote)
	api.GET("/getNotesWithDueReminders", handler.handleDueReminders)
	api.POST("/updateReadNotification", handler.handleUpdateReadNotification)
	api.GET("/stream", handler.handleNotesStream)

	api.GET("/getRequestsByUserId", handler.handleListOwnRequests)
	api.POST("/addRequest", handler.handleAddRequest)
	api.GET("/proUser/false", handler.requireAdmin, handler.handleListPendingRequests)
	api.PUT("/updateUserToPro/:id", handler.requireAdmin, handler.handleApproveRequest)

	return router, nil
}

type httpHandler struct {
	verifier        auth.TokenVerifier
	notesService    *notes.Service
	requestsService *requests.Service
	usersService    *users.Service
	realtime        *RealtimeDispatcher
	logger          *zap.Logger
	clock           func() time.Time
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	claims, err := h.verifier.Verify(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if strings.TrimSpace(claims.Subject) == "" {
		h.logger.Warn("token validation failed", zap.Error(errInvalidAuthorization))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if h.usersService != nil {
		if _, err := h.usersService.Record(c.Request.Context(), claims); err != nil {
			h.logger.Warn("failed to record identity", zap.String("user_id", claims.Subject), zap.Error(err))
		}
	}

	c.Set(userIDContextKey, claims.Subject)
	c.Set(claimsContextKey, claims)
	c.Next()
}

// bearerToken reads the Authorization header, falling back to the access_token
// query parameter for EventSource clients that cannot set headers.
func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header != "" {
		if !strings.HasPrefix(header, "Bearer ") {
			return "", false
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		return token, token != ""
	}
	if c.Request.Method == http.MethodGet {
		token := strings.TrimSpace(c.Query("access_token"))
		return token, token != ""
	}
	return "", false
}

func (h *httpHandler) requireAdmin(c *gin.Context) {
	claims := claimsFrom(c)
	if !claims.IsAdmin() {
		h.logger.Warn("admin access denied",
			zap.String("user_id", claims.Subject),
			zap.String("path", c.FullPath()))
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.Next()
}

func claimsFrom(c *gin.Context) auth.Claims {
	value, ok := c.Get(claimsContextKey)
	if !ok {
		return auth.Claims{}
	}
	claims, ok := value.(auth.Claims)
	if !ok {
		return auth.Claims{}
	}
	return claims
}

type codedError interface {
	Code() string
}

// writeServiceError maps domain errors to HTTP responses. Unexpected failures are
// reported with the supplied reason.
func (h *httpHandler) writeServiceError(c *gin.Context, failureReason string, err error) {
	status, reason := classifyError(err)
	if reason == "" {
		reason = failureReason
	}
	body := gin.H{"error": reason}
	var coded codedError
	if errors.As(err, &coded) {
		body["code"] = coded.Code()
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", requestIDFrom(c)),
			zap.String("reason", failureReason),
			zap.Error(err))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, notes.ErrEmptyNote):
		return http.StatusBadRequest, "empty_note"
	case errors.Is(err, notes.ErrInvalidColor):
		return http.StatusBadRequest, "invalid_color"
	case errors.Is(err, notes.ErrInvalidReminder):
		return http.StatusBadRequest, "invalid_reminder"
	case errors.Is(err, requests.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, notes.ErrNotFound), errors.Is(err, requests.ErrNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, ""
	}
}
