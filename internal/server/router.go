package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"quill/internal/folderstore"
	"quill/internal/identity"
	"quill/internal/notestore"
	"quill/internal/remote"
	"quill/internal/settings"
	"quill/internal/users"
)

const userIDContextKey = "quill_user_id"

var (
	errMissingSession  = errors.New("session provider dependency required")
	errMissingNotes    = errors.New("note store dependency required")
	errMissingFolders  = errors.New("folder store dependency required")
	errInvalidBearer   = errors.New("authorization header missing or invalid")
	errMissingRealtime = errors.New("realtime dispatcher dependency required")
)

// SessionManager is the slice of the identity layer the router needs.
type SessionManager interface {
	ValidateToken(token string) (identity.SessionClaims, error)
	SignIn(token string) (identity.SessionClaims, error)
	SignOut()
	CurrentUserID() (string, bool)
}

// ChatClient answers free-form assistant messages.
type ChatClient interface {
	Chat(ctx context.Context, message string) (string, error)
}

// Dependencies wires the HTTP surface.
type Dependencies struct {
	Session   SessionManager
	Notes     *notestore.Store
	Folders   *folderstore.Store
	Processor *notestore.Processor
	Chat      ChatClient
	Settings  settings.Repository
	Users     *users.Service
	Realtime  *RealtimeDispatcher
	Logger    *zap.Logger
}

// NewHTTPHandler builds the gin router for the note API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Session == nil {
		return nil, errMissingSession
	}
	if deps.Notes == nil {
		return nil, errMissingNotes
	}
	if deps.Folders == nil {
		return nil, errMissingFolders
	}
	if deps.Realtime == nil {
		return nil, errMissingRealtime
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		session:   deps.Session,
		notes:     deps.Notes,
		folders:   deps.Folders,
		processor: deps.Processor,
		chat:      deps.Chat,
		settings:  deps.Settings,
		users:     deps.Users,
		realtime:  deps.Realtime,
		logger:    logger,
	}

	router.POST("/auth/session", handler.handleSignIn)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.DELETE("/auth/session", handler.handleSignOut)

	protected.GET("/notes", handler.handleListNotes)
	protected.POST("/notes", handler.handleCreateNote)
	protected.GET("/notes/:id", handler.handleGetNote)
	protected.PATCH("/notes/:id", handler.handleUpdateNote)
	protected.DELETE("/notes/:id", handler.handleDeleteNote)
	protected.POST("/notes/:id/restore", handler.handleRestoreNote)
	protected.DELETE("/notes/:id/purge", handler.handlePurgeNote)
	protected.POST("/notes/:id/pin", handler.handleTogglePin)
	protected.GET("/notes/:id/export/markdown", handler.handleExportMarkdown)
	protected.GET("/notes/:id/export/drive", handler.handleExportDrive)
	protected.POST("/notes/:id/captures", handler.handleProcessCapture)
	protected.POST("/notes/:id/summary", handler.handleSummarize)
	protected.POST("/notes/:id/summary/refine", handler.handleRefineSummary)
	protected.POST("/sync/drive", handler.handleDriveSync)

	protected.GET("/folders", handler.handleListFolders)
	protected.POST("/folders", handler.handleCreateFolder)
	protected.PATCH("/folders/:id", handler.handleRenameFolder)
	protected.DELETE("/folders/:id", handler.handleDeleteFolder)

	protected.GET("/settings", handler.handleListSettings)
	protected.PUT("/settings/:key", handler.handleSetSetting)
	protected.DELETE("/settings/:key", handler.handleClearSetting)

	protected.POST("/chat", handler.handleChat)

	router.GET("/events", handler.handleEventStream)

	return router, nil
}

type httpHandler struct {
	session   SessionManager
	notes     *notestore.Store
	folders   *folderstore.Store
	processor *notestore.Processor
	chat      ChatClient
	settings  settings.Repository
	users     *users.Service
	realtime  *RealtimeDispatcher
	logger    *zap.Logger

	subscriptionMu sync.Mutex
	unsubscribers  []remote.Unsubscribe
}

type sessionRequestPayload struct {
	Token string `json:"token"`
}

type sessionResponsePayload struct {
	UserID          string `json:"user_id"`
	UserEmail       string `json:"user_email,omitempty"`
	UserDisplayName string `json:"user_display_name,omitempty"`
}

func (h *httpHandler) handleSignIn(c *gin.Context) {
	var request sessionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Token) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	claims, err := h.session.SignIn(request.Token)
	if err != nil {
		h.logger.Warn("session token rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if h.users != nil {
		if err := h.users.RecordSignIn(claims); err != nil {
			h.logger.Warn("failed to record sign-in profile", zap.Error(err))
		}
	}

	h.startSubscriptions()

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	c.JSON(http.StatusOK, sessionResponsePayload{
		UserID:          userID,
		UserEmail:       claims.UserEmail,
		UserDisplayName: claims.UserDisplayName,
	})
}

func (h *httpHandler) handleSignOut(c *gin.Context) {
	h.stopSubscriptions()
	h.session.SignOut()
	c.Status(http.StatusNoContent)
}

// startSubscriptions opens the per-user remote feeds, replacing any feeds
// from a previous session.
func (h *httpHandler) startSubscriptions() {
	h.subscriptionMu.Lock()
	defer h.subscriptionMu.Unlock()

	for _, unsubscribe := range h.unsubscribers {
		unsubscribe()
	}
	h.unsubscribers = nil

	if unsubscribe, err := h.notes.Start(context.Background()); err != nil {
		h.logger.Warn("note feed subscription failed", zap.Error(err))
	} else {
		h.unsubscribers = append(h.unsubscribers, unsubscribe)
	}
	if unsubscribe, err := h.folders.Start(context.Background()); err != nil {
		h.logger.Warn("folder feed subscription failed", zap.Error(err))
	} else {
		h.unsubscribers = append(h.unsubscribers, unsubscribe)
	}
}

func (h *httpHandler) stopSubscriptions() {
	h.subscriptionMu.Lock()
	defer h.subscriptionMu.Unlock()
	for _, unsubscribe := range h.unsubscribers {
		unsubscribe()
	}
	h.unsubscribers = nil
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidBearer.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidBearer.Error()})
		return
	}
	claims, err := h.session.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	subject := claims.UserID
	if subject == "" {
		subject = claims.Subject
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}

func (h *httpHandler) handleChat(c *gin.Context) {
	if h.chat == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "chat_unavailable"})
		return
	}
	var request struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	reply, err := h.chat.Chat(c.Request.Context(), request.Message)
	if err != nil {
		h.logger.Error("chat call failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "chat_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

func (h *httpHandler) handleListSettings(c *gin.Context) {
	if h.settings == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "settings_unavailable"})
		return
	}
	values, err := h.settings.All(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.logger.Error("failed to list settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "settings_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": values})
}

func (h *httpHandler) handleSetSetting(c *gin.Context) {
	if h.settings == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "settings_unavailable"})
		return
	}
	var request struct {
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	err := h.settings.Set(c.Request.Context(), c.GetString(userIDContextKey), c.Param("key"), request.Value)
	if err != nil {
		if errors.Is(err, settings.ErrEmptyKey) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_key"})
			return
		}
		h.logger.Error("failed to store setting", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "settings_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleClearSetting(c *gin.Context) {
	if h.settings == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "settings_unavailable"})
		return
	}
	err := h.settings.Clear(c.Request.Context(), c.GetString(userIDContextKey), c.Param("key"))
	if err != nil {
		h.logger.Error("failed to clear setting", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "settings_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}
