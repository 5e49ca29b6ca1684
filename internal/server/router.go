package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/8w6s/profile-api/internal/auth"
	"github.com/8w6s/profile-api/internal/integrations"
	"github.com/8w6s/profile-api/internal/profile"
	"github.com/8w6s/profile-api/internal/uploads"
)

var (
	errMissingProfileStore  = errors.New("profile store dependency required")
	errMissingTokenManager  = errors.New("token manager required when an admin password is set")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// PresenceSource supplies the latest cached Discord presence snapshot.
type PresenceSource interface {
	Snapshot() (json.RawMessage, bool)
}

// Dependencies wires the HTTP surface. Store is required; every other
// collaborator is optional and its routes are simply not registered
// when absent.
type Dependencies struct {
	Store         *profile.Store
	Tokens        *auth.TokenIssuer
	AdminPassword string
	Integrations  *integrations.Client
	Presence      PresenceSource
	Uploads       *uploads.Service
	AssetsDir     string
	// DownloadClient fetches externally hosted files for the download
	// proxy. Defaults to a bounded-timeout client.
	DownloadClient *http.Client
	Logger         *zap.Logger
}

// NewHTTPHandler builds the gin router for the profile API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Store == nil {
		return nil, errMissingProfileStore
	}
	if deps.AdminPassword != "" && deps.Tokens == nil {
		return nil, errMissingTokenManager
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	downloadClient := deps.DownloadClient
	if downloadClient == nil {
		downloadClient = &http.Client{Timeout: 60 * time.Second}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		store:          deps.Store,
		tokens:         deps.Tokens,
		adminPassword:  deps.AdminPassword,
		integrations:   deps.Integrations,
		presence:       deps.Presence,
		uploads:        deps.Uploads,
		downloadClient: downloadClient,
		logger:         logger,
	}

	router.GET("/profile", handler.handleGetProfile)
	router.POST("/views", handler.handleIncrementViews)
	router.POST("/like", handler.handleToggleLike)
	router.GET("/download", handler.handleDownload)

	if deps.AdminPassword != "" {
		router.POST("/auth/login", handler.handleAdminLogin)
	}

	protected := router.Group("/")
	protected.Use(handler.authorizeAdmin)
	protected.POST("/profile", handler.handleReplaceProfile)
	if deps.Uploads != nil {
		protected.POST("/upload/local", handler.handleLocalUpload)
		protected.POST("/upload/catbox", handler.handleCatboxUpload)
	}

	if deps.Integrations != nil {
		router.GET("/steam", handler.handleSteam)
		router.GET("/leetcode", handler.handleLeetCode)
		router.GET("/wakatime", handler.handleWakaTime)
		router.GET("/hoyoverse", handler.handleHoyoverse)
	}
	if deps.Presence != nil {
		router.GET("/presence", handler.handlePresence)
	}
	if deps.AssetsDir != "" {
		router.Static("/assets", deps.AssetsDir)
	}

	return router, nil
}

type httpHandler struct {
	store          *profile.Store
	tokens         *auth.TokenIssuer
	adminPassword  string
	integrations   *integrations.Client
	presence       PresenceSource
	uploads        *uploads.Service
	downloadClient *http.Client
	logger         *zap.Logger
}

func (h *httpHandler) handleGetProfile(c *gin.Context) {
	doc, err := h.store.Get(c.Request.Context())
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{})
			return
		}
		h.logger.Error("profile fetch failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch profile data"})
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *httpHandler) handleReplaceProfile(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	submitted, err := profile.DecodeDocument(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	reconciled, err := h.store.Replace(c.Request.Context(), submitted)
	if err != nil {
		if errors.Is(err, profile.ErrInvalidDocument) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("profile save failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save profile data"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": reconciled})
}

type viewsRequestPayload struct {
	PostID string `json:"postId"`
}

func (h *httpHandler) handleIncrementViews(c *gin.Context) {
	// An absent or empty body targets the site-wide counter.
	var request viewsRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		request = viewsRequestPayload{}
	}
	fingerprint := profile.NewFingerprint(c.ClientIP())

	var (
		result profile.ViewResult
		err    error
	)
	if request.PostID != "" {
		postID, idErr := profile.NewPostID(request.PostID)
		if idErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		result, err = h.store.IncrementPostView(c.Request.Context(), postID, fingerprint)
	} else {
		result, err = h.store.IncrementSiteView(c.Request.Context(), fingerprint)
	}
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Profile data not found"})
			return
		}
		h.logger.Error("view increment failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to increment views"})
		return
	}
	if result.AlreadyCounted {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "Already viewed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "views": result.Views})
}

type likeRequestPayload struct {
	PostID string `json:"postId"`
}

func (h *httpHandler) handleToggleLike(c *gin.Context) {
	var request likeRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.PostID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	postID, err := profile.NewPostID(request.PostID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	result, err := h.store.ToggleLike(c.Request.Context(), postID, profile.NewFingerprint(c.ClientIP()))
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
			return
		}
		h.logger.Error("like toggle failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "likes": result.Likes, "liked": result.Liked})
}

func (h *httpHandler) handleDownload(c *gin.Context) {
	rawFileID := c.Query("fileId")
	if rawFileID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File ID is required"})
		return
	}
	fileID, err := profile.NewFileID(rawFileID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File ID is required"})
		return
	}

	file, err := h.store.IncrementDownload(c.Request.Context(), fileID)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
			return
		}
		h.logger.Error("download increment failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	// Locally hosted assets are served by this process already; send the
	// browser there instead of proxying ourselves.
	if !strings.HasPrefix(file.URL, "http://") && !strings.HasPrefix(file.URL, "https://") {
		c.Redirect(http.StatusFound, file.URL)
		return
	}

	request, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, file.URL, nil)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to retrieve file"})
		return
	}
	response, err := h.downloadClient.Do(request)
	if err != nil {
		h.logger.Warn("download proxy failed", zap.Error(err), zap.String("file_id", fileID.String()))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to retrieve file"})
		return
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode > 299 {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to retrieve file"})
		return
	}

	contentType := response.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, response.ContentLength, contentType, response.Body, map[string]string{
		"Content-Disposition": `attachment; filename="` + file.Name + `"`,
	})
}

type loginRequestPayload struct {
	Password string `json:"password"`
}

func (h *httpHandler) handleAdminLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := auth.VerifyPassword(h.adminPassword, request.Password); err != nil {
		h.logger.Warn("admin login rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	token, expiresIn, err := h.tokens.IssueAdminToken(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to issue admin token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"expires_in":   expiresIn,
		"token_type":   "Bearer",
	})
}

// authorizeAdmin guards the admin surface. With no admin password
// configured the deployment is single-user and open, matching the
// original site.
func (h *httpHandler) authorizeAdmin(c *gin.Context) {
	if h.adminPassword == "" {
		c.Next()
		return
	}
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	if _, err := h.tokens.ValidateToken(token); err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

func (h *httpHandler) handleSteam(c *gin.Context) {
	steamID := c.Query("steamId")
	apiKey := c.Query("apiKey")
	if steamID == "" || apiKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Steam ID and API Key required"})
		return
	}
	summary, err := h.integrations.SteamSummary(c.Request.Context(), steamID, apiKey)
	if err != nil {
		h.writeUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *httpHandler) handleLeetCode(c *gin.Context) {
	username := c.Query("username")
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username required"})
		return
	}
	body, err := h.integrations.LeetCodeStats(c.Request.Context(), username)
	if err != nil {
		h.writeUpstreamError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

func (h *httpHandler) handleWakaTime(c *gin.Context) {
	username := c.Query("username")
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username required"})
		return
	}
	body, err := h.integrations.WakaTimeStats(c.Request.Context(), username)
	if err != nil {
		h.writeUpstreamError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

func (h *httpHandler) handleHoyoverse(c *gin.Context) {
	uid := c.Query("uid")
	game := c.Query("game")
	if uid == "" || game == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "UID and Game are required"})
		return
	}
	body, err := h.integrations.HoyoverseProfile(c.Request.Context(), game, uid)
	if err != nil {
		h.writeUpstreamError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

func (h *httpHandler) writeUpstreamError(c *gin.Context, err error) {
	if upstream, ok := integrations.IsUpstreamError(err); ok {
		status := upstream.Status
		// Upstream 5xx means the integration is down, not that we are:
		// degrade to a bad-gateway with the normalized error shape.
		if status >= 500 {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": upstream.Message})
		return
	}
	h.logger.Error("integration call failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch data"})
}

func (h *httpHandler) handlePresence(c *gin.Context) {
	snapshot, ok := h.presence.Snapshot()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "presence unavailable"})
		return
	}
	c.Data(http.StatusOK, "application/json", snapshot)
}

func (h *httpHandler) handleLocalUpload(c *gin.Context) {
	fileHeader, err := c.FormFile("fileToUpload")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	opened, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	defer opened.Close()

	publicURL, err := h.uploads.SaveLocal(fileHeader.Filename, opened)
	if err != nil {
		h.logger.Error("local upload failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	c.String(http.StatusOK, publicURL)
}

func (h *httpHandler) handleCatboxUpload(c *gin.Context) {
	fileHeader, err := c.FormFile("fileToUpload")
	userHash := c.PostForm("userhash")
	if err != nil || userHash == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing file or userhash"})
		return
	}
	opened, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing file or userhash"})
		return
	}
	defer opened.Close()

	publicURL, err := h.uploads.ForwardCatbox(c.Request.Context(), userHash, fileHeader.Filename, opened)
	if err != nil {
		h.logger.Error("catbox upload failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Internal Server Error"})
		return
	}
	c.String(http.StatusOK, publicURL)
}
