// Package userdelivery manages delivery layer of users and their sessions.
package userdelivery

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-petr/mini-bank/internal/domain"
	"github.com/go-petr/mini-bank/internal/middleware"
	"github.com/go-petr/mini-bank/pkg/web"
	"github.com/rs/zerolog"
)

// Service provides service layer interface needed by user delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package userdelivery
type Service interface {
	Create(ctx context.Context, name, email, phone, password string) (domain.UserWithoutPassword, error)
	CheckPassword(ctx context.Context, email, password string) (domain.UserWithoutPassword, error)
}

// SessionManager issues, resolves and ends sessions.
type SessionManager interface {
	Create(ctx context.Context, user domain.UserWithoutPassword, userAgent, clientIP string) (string, domain.Session, error)
	Authenticate(ctx context.Context, token string) (domain.Principal, error)
	Logout(ctx context.Context, token string) error
}

// Handler facilitates user delivery layer logic.
type Handler struct {
	service      Service
	sessions     SessionManager
	cookieSecure bool
}

// NewHandler returns user handler. cookieSecure marks the session cookie as HTTPS only.
func NewHandler(us Service, sm SessionManager, cookieSecure bool) *Handler {
	return &Handler{
		service:      us,
		sessions:     sm,
		cookieSecure: cookieSecure,
	}
}

type userResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

func newUserResponse(u domain.UserWithoutPassword) userResponse {
	return userResponse{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone}
}

type sessionResponse struct {
	web.Response
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}

type registerRequest struct {
	Name     string `json:"name" binding:"required_without=FullName,max=100"`
	FullName string `json:"full_name" binding:"max=100"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone" binding:"required,len=10,numeric"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

// Register handles http request to create a user and logs the user in.
func (h *Handler) Register(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var req registerRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		middleware.RespondBindError(gctx, err)
		return
	}

	name := req.Name
	if strings.TrimSpace(name) == "" {
		name = req.FullName
	}

	user, err := h.service.Create(ctx, name, req.Email, req.Phone, req.Password)
	if err != nil {
		middleware.RespondError(gctx, err)
		return
	}

	h.startSession(gctx, user, "Registration successful")
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles http login request and sets the session cookie.
func (h *Handler) Login(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var req loginRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		middleware.RespondBindError(gctx, err)
		return
	}

	user, err := h.service.CheckPassword(ctx, req.Email, req.Password)
	if err != nil {
		middleware.RespondError(gctx, err)
		return
	}

	h.startSession(gctx, user, "Login successful")
}

func (h *Handler) startSession(gctx *gin.Context, user domain.UserWithoutPassword, message string) {
	ctx := gctx.Request.Context()

	token, session, err := h.sessions.Create(ctx, user, gctx.Request.UserAgent(), gctx.ClientIP())
	if err != nil {
		middleware.RespondError(gctx, err)
		return
	}

	zerolog.Ctx(ctx).Info().Int64("user_id", user.ID).Msg(message)

	h.setCookie(gctx, token, int(time.Until(session.ExpiresAt).Seconds()))

	gctx.JSON(http.StatusOK, sessionResponse{
		Response: web.Response{Success: true},
		Message:  message,
		User:     newUserResponse(user),
	})
}

func (h *Handler) setCookie(gctx *gin.Context, token string, maxAge int) {
	gctx.SetSameSite(http.SameSiteLaxMode)
	gctx.SetCookie(middleware.SessionCookie, token, maxAge, "/", "", h.cookieSecure, true)
}

type messageResponse struct {
	web.Response
	Message string `json:"message"`
}

// Logout blocks the caller's session, if any, and clears the cookie.
func (h *Handler) Logout(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	if token, err := middleware.SessionToken(gctx); err == nil {
		if err := h.sessions.Logout(ctx, token); err != nil {
			middleware.RespondError(gctx, err)
			return
		}
	}

	h.setCookie(gctx, "", -1)

	gctx.JSON(http.StatusOK, messageResponse{
		Response: web.Response{Success: true},
		Message:  "Logout successful",
	})
}

type checkResponse struct {
	web.Response
	LoggedIn bool          `json:"logged_in"`
	User     *userResponse `json:"user,omitempty"`
}

// Check reports whether the request carries a valid session.
func (h *Handler) Check(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	res := checkResponse{Response: web.Response{Success: true}}

	token, err := middleware.SessionToken(gctx)
	if err != nil {
		gctx.JSON(http.StatusOK, res)
		return
	}

	p, err := h.sessions.Authenticate(ctx, token)
	if err != nil {
		if middleware.Status(err) != http.StatusUnauthorized {
			middleware.RespondError(gctx, err)
			return
		}

		gctx.JSON(http.StatusOK, res)

		return
	}

	res.LoggedIn = true
	res.User = &userResponse{ID: p.UserID, Name: p.Name, Email: p.Email}

	gctx.JSON(http.StatusOK, res)
}
