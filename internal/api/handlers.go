package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mindvault/internal/auth"
	"mindvault/internal/models"
	"mindvault/internal/service/account"
	"mindvault/internal/service/chat"
	"mindvault/internal/service/profile"
	"mindvault/internal/service/provider"
)

// Handler wires HTTP routes to the chat orchestrator and the profile
// stores.
type Handler struct {
	accounts     *account.Service
	auth         *auth.Service
	orchestrator *chat.Orchestrator
	sessions     *chat.Store
	profiles     *profile.Service
}

// NewHandler constructs a Handler instance.
func NewHandler(accounts *account.Service, authService *auth.Service, orchestrator *chat.Orchestrator, sessions *chat.Store, profiles *profile.Service) *Handler {
	return &Handler{
		accounts:     accounts,
		auth:         authService,
		orchestrator: orchestrator,
		sessions:     sessions,
		profiles:     profiles,
	}
}

// check token userID is match with param userID
func (h *Handler) requirePathUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.UserIDFromContext(c)
		if !ok || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		paramID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || paramID <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		if paramID != userID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user mismatch"})
			return
		}
		c.Next()
	}
}

func (h *Handler) authorizedUserID(c *gin.Context) (int64, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok || userID <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return 0, false
	}
	return userID, true
}

// RegisterRoutes attaches all HTTP routes to the router. Profile CRUD
// routes are generated from the field catalog, so the HTTP surface and
// the tool surface always cover the same records.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/users/register", h.registerUser)
	api.POST("/users/login", h.loginUser)

	authMW := h.auth.Middleware()
	userRoutes := api.Group("/users/:id")
	userRoutes.Use(authMW, h.requirePathUser(), h.auth.CSRFMiddleware())

	userRoutes.POST("/chat", h.chat)
	userRoutes.GET("/chat/sessions", h.listSessions)
	userRoutes.GET("/chat/sessions/:session_token/history", h.sessionHistory)
	userRoutes.DELETE("/chat/sessions/:session_token", h.closeSession)

	for _, rec := range models.ProfileRecords {
		spec := rec
		userRoutes.GET(spec.Path, h.getRecord(spec))
		userRoutes.PATCH(spec.Path, h.patchRecord(spec))
	}
	userRoutes.GET(models.GoalRecord.Path, h.listGoals)
	userRoutes.POST(models.GoalRecord.Path, h.createGoal)

	userRoutes.POST("/logout", h.logoutUser)
	userRoutes.DELETE("", h.deleteUser)
}

// User create&login interface
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) registerUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.accounts.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"role":       user.RoleName,
		"created_at": user.CreatedAt,
	})
}

func (h *Handler) loginUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.accounts.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	authToken, err := h.auth.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	h.setAuthCookies(c, authToken, csrfToken)
	c.JSON(http.StatusOK, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"role":       user.RoleName,
		"created_at": user.CreatedAt,
		"auth_token": authToken,
	})
}

// Chat interface
type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	PsychTest bool   `json:"is_psych_test"`
}

func (h *Handler) chat(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	reply, err := h.orchestrator.HandleMessage(c.Request.Context(), chat.Request{
		UserID:       userID,
		Message:      req.Message,
		SessionToken: req.SessionID,
		PsychTest:    req.PsychTest,
	})
	if err != nil {
		h.chatError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ai_response":  reply.Text,
		"session_id":   reply.SessionToken,
		"chat_history": reply.Transcript,
	})
}

func (h *Handler) chatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrQuotaExceeded), errors.Is(err, chat.ErrSessionLimit):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case provider.IsProviderError(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "assistant is unavailable, please retry"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *Handler) listSessions(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	sessions, err := h.sessions.ActiveSessions(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sessions == nil {
		sessions = make([]models.ChatSession, 0)
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *Handler) sessionHistory(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	token := c.Param("session_token")
	session, err := h.sessions.FindByToken(c.Request.Context(), userID, token)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	turns, err := h.sessions.Transcript(c.Request.Context(), session.Token)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if turns == nil {
		turns = make([]models.Turn, 0)
	}
	c.JSON(http.StatusOK, gin.H{"session": session, "history": turns})
}

func (h *Handler) closeSession(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	token := c.Param("session_token")
	if err := h.orchestrator.CloseSession(c.Request.Context(), userID, token); err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// getRecord serves the stored sub-record; an empty object means the user
// has not filled it in yet.
func (h *Handler) getRecord(rec models.RecordSpec) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := h.authorizedUserID(c)
		if !ok {
			return
		}
		record, err := h.profiles.Get(c.Request.Context(), userID, rec)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if record == nil {
			record = map[string]interface{}{}
		}
		c.JSON(http.StatusOK, record)
	}
}

// patchRecord applies a partial update through the same validation the
// tool executor uses.
func (h *Handler) patchRecord(rec models.RecordSpec) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := h.authorizedUserID(c)
		if !ok {
			return
		}
		var args map[string]interface{}
		if err := c.ShouldBindJSON(&args); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		fields, errs := profile.ValidateFields(rec, args, false)
		if len(errs) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"errors": errs})
			return
		}
		if len(fields) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
			return
		}
		merged, err := h.profiles.Upsert(c.Request.Context(), userID, rec, fields)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, merged)
	}
}

func (h *Handler) createGoal(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var args map[string]interface{}
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	fields, errs := profile.ValidateFields(models.GoalRecord, args, true)
	if len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"errors": errs})
		return
	}
	goal, err := h.profiles.CreateGoal(c.Request.Context(), userID, fields)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, goal)
}

func (h *Handler) listGoals(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	goals, err := h.profiles.ListGoals(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if goals == nil {
		goals = make([]map[string]interface{}, 0)
	}
	c.JSON(http.StatusOK, gin.H{"goals": goals})
}

func (h *Handler) logoutUser(c *gin.Context) {
	if _, ok := h.authorizedUserID(c); !ok {
		return
	}
	if authToken, ok := auth.AuthTokenFromContext(c); ok {
		_ = h.auth.RevokeToken(c.Request.Context(), authToken)
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteUser(c *gin.Context) {
	id, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := h.auth.RevokeUserTokens(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.accounts.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
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
