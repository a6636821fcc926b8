package session

import (
	"net/http"
	"strings"

	"gameauth/internal/domain"
	"gameauth/internal/pkg/response"
	"gameauth/internal/pkg/validator"

	"github.com/gin-gonic/gin"
)

// Status flags of the flat session bodies.
const (
	flagSuccess = "success"
	flagValid   = "valid"
)

// Handler serves the session endpoints used by game clients.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterPublicRoutes mounts the credential endpoints. limit runs in front of the
// ones that mint tokens.
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup, limit ...gin.HandlerFunc) {
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/login", chain(limit, h.Login)...)
		authGroup.POST("/verify", chain(limit, h.Verify)...)
		authGroup.POST("/nickname", h.UpdateNickname)
		authGroup.POST("/logout", h.Logout)
	}
}

func (h *Handler) RegisterProtectedRoutes(protected *gin.RouterGroup) {
	protected.GET("/users/me", h.GetMe)
}

// Login exchanges a provider assertion for an access and refresh token pair.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindAndValidate(c, flagSuccess, &req) {
		return
	}

	res, err := h.service.Login(c.Request.Context(), LoginInput{
		Provider:  req.Provider,
		Assertion: req.ProviderToken,
		Client:    clientOf(c, req.DeviceID),
	})
	if err != nil {
		writeError(c, flagSuccess, err)
		return
	}
	response.Session(c, http.StatusOK, flagSuccess, true, tokenFields(res))
}

// Verify rotates a refresh token, or with only a jwt checks an access token.
func (h *Handler) Verify(c *gin.Context) {
	var req VerifyRequest
	if !bindAndValidate(c, flagValid, &req) {
		return
	}

	client := clientOf(c, req.DeviceID)
	if strings.TrimSpace(req.RefreshToken) == "" {
		user, err := h.service.VerifyAccess(c.Request.Context(), req.JWT, client)
		if err != nil {
			writeError(c, flagValid, err)
			return
		}
		response.Session(c, http.StatusOK, flagValid, true, gin.H{"user_id": user.UserID})
		return
	}

	res, err := h.service.Refresh(c.Request.Context(), RefreshInput{
		RefreshToken: req.RefreshToken,
		Client:       client,
	})
	if err != nil {
		writeError(c, flagValid, err)
		return
	}
	response.Session(c, http.StatusOK, flagValid, true, tokenFields(res))
}

// UpdateNickname renames the token owner. The jwt comes from the body or the Authorization header.
func (h *Handler) UpdateNickname(c *gin.Context) {
	var req NicknameRequest
	if !bindAndValidate(c, flagSuccess, &req) {
		return
	}

	token := req.JWT
	if token == "" {
		token = bearerToken(c)
	}
	if token == "" {
		writeError(c, flagSuccess, domain.ErrTokenInvalid)
		return
	}

	user, err := h.service.UpdateNickname(c.Request.Context(), token, req.Nickname)
	if err != nil {
		writeError(c, flagSuccess, err)
		return
	}
	response.Session(c, http.StatusOK, flagSuccess, true, gin.H{"nickname": user.NicknameOrEmpty()})
}

func (h *Handler) Logout(c *gin.Context) {
	var req LogoutRequest
	if !bindAndValidate(c, flagSuccess, &req) {
		return
	}
	if err := h.service.Logout(c.Request.Context(), req.RefreshToken, clientOf(c, req.DeviceID)); err != nil {
		writeError(c, flagSuccess, err)
		return
	}
	response.Session(c, http.StatusOK, flagSuccess, true, nil)
}

// GetMe returns the caller's profile.
func (h *Handler) GetMe(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	user, err := h.service.Me(c.Request.Context(), userID)
	if err != nil {
		status, code, msg := httpError(err)
		response.Error(c, status, string(code), msg)
		return
	}
	response.Success(c, http.StatusOK, toUserResponse(user))
}

func bindAndValidate(c *gin.Context, flag string, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, flag, domain.ErrValidation)
		return false
	}
	if errs := validator.Validate(req); errs != nil {
		status, code, msg := httpError(domain.ErrValidation)
		response.SessionErrorWithDetails(c, status, flag, string(code), msg, false, errs)
		return false
	}
	return true
}

func writeError(c *gin.Context, flag string, err error) {
	status, code, msg := httpError(err)
	response.SessionError(c, status, flag, string(code), msg, domain.IsRetriable(err))
}

func tokenFields(res *Result) gin.H {
	return gin.H{
		"jwt":                res.AccessToken,
		"refresh_token":      res.RefreshToken,
		"user_id":            res.UserID,
		"issued_at":          res.IssuedAt.Unix(),
		"expires_in":         int64(res.AccessExpiresAt.Sub(res.IssuedAt).Seconds()),
		"refresh_expires_at": res.RefreshExpiresAt.Unix(),
	}
}

func chain(pre []gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(pre)+1)
	return append(append(out, pre...), h)
}

func clientOf(c *gin.Context, deviceID string) Client {
	return Client{
		DeviceID:  deviceID,
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

func bearerToken(c *gin.Context) string {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
