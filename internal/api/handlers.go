package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"jindalchat/internal/auth"
	"jindalchat/internal/identity"
	"jindalchat/internal/logger"
	"jindalchat/internal/metrics"
	"jindalchat/internal/models"
	"jindalchat/internal/service/assistant"
	"jindalchat/internal/service/chat"
)

const (
	flowSignIn = "signIn"
	flowSignUp = "signUp"
)

type Accounts interface {
	RegisterUser(ctx context.Context, email, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*models.User, error)
}

type ChatService interface {
	SendMessage(ctx context.Context, id *auth.Identity, content string) (*models.Message, error)
	GetMessages(ctx context.Context, id *auth.Identity) ([]*models.Message, error)
	CurrentUser(ctx context.Context, id *auth.Identity) (*models.User, error)
}

// Handler wires HTTP routes to the account and chat services.
type Handler struct {
	accounts Accounts
	chat     ChatService
	auth     *auth.Service
	metrics  *metrics.Metrics
	log      *logger.Logger
}

// NewHandler constructs a Handler instance.
func NewHandler(accounts Accounts, chatService ChatService, authService *auth.Service, m *metrics.Metrics, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		accounts: accounts,
		chat:     chatService,
		auth:     authService,
		metrics:  m,
		log:      log.With("component", "api"),
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.healthz)
	router.GET("/metrics", gin.WrapH(h.metrics.Handler()))

	api := router.Group("/api")
	api.Use(h.auth.Middleware())

	authRoutes := api.Group("/auth")
	authRoutes.POST("/signin", h.signIn)
	authRoutes.POST("/signout", h.auth.CSRFMiddleware(), h.signOut)
	authRoutes.GET("/me", h.me)

	chatRoutes := api.Group("/chat")
	chatRoutes.Use(h.auth.CSRFMiddleware())
	chatRoutes.POST("/messages", h.sendMessage)
	chatRoutes.GET("/messages", h.listMessages)
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Flow     string `json:"flow"`
}

func (h *Handler) signIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var (
		user   *models.User
		err    error
		status = http.StatusOK
	)
	switch req.Flow {
	case flowSignIn, "":
		user, err = h.accounts.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, assistant.ErrInvalidCredentials) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			} else {
				h.internalError(c, "sign in", err)
			}
			return
		}
	case flowSignUp:
		user, err = h.accounts.RegisterUser(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, assistant.ErrEmailTaken) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			} else {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			}
			return
		}
		status = http.StatusCreated
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "flow must be signIn or signUp"})
		return
	}

	authToken, err := h.auth.IssueToken(user)
	if err != nil {
		h.internalError(c, "issue token", err)
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		h.internalError(c, "issue csrf token", err)
		return
	}
	h.setAuthCookies(c, authToken, csrfToken)
	h.log.Info("signed in", "user_id", user.ID, "flow", req.Flow)
	c.JSON(status, gin.H{
		"user":       user,
		"auth_token": authToken,
	})
}

func (h *Handler) signOut(c *gin.Context) {
	if authToken, ok := auth.AuthTokenFromContext(c); ok {
		if err := h.auth.RevokeToken(c.Request.Context(), authToken); err != nil {
			h.log.Warn("revoke token failed", "error", err)
		}
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) me(c *gin.Context) {
	caller, _ := auth.IdentityFromContext(c)
	user, err := h.chat.CurrentUser(c.Request.Context(), caller)
	if err != nil {
		h.internalError(c, "current user", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

func (h *Handler) sendMessage(c *gin.Context) {
	caller, ok := auth.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if _, err := h.chat.SendMessage(c.Request.Context(), caller, req.Content); err != nil {
		h.writeChatError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *Handler) listMessages(c *gin.Context) {
	caller, _ := auth.IdentityFromContext(c)
	messages, err := h.chat.GetMessages(c.Request.Context(), caller)
	if err != nil {
		h.internalError(c, "list messages", err)
		return
	}
	if messages == nil {
		messages = make([]*models.Message, 0)
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *Handler) writeChatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, identity.ErrNotAuthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
	case errors.Is(err, identity.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case errors.Is(err, chat.ErrScheduleFailed):
		h.log.Error("send message", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server is busy, please retry"})
	default:
		h.internalError(c, "send message", err)
	}
}

func (h *Handler) internalError(c *gin.Context, op string, err error) {
	h.log.Error(op, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}
