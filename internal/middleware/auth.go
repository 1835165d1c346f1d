// Package middleware contains gin middlewares shared by the HTTP handlers.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-petr/mini-bank/internal/domain"
	"github.com/go-petr/mini-bank/pkg/errorspkg"
	"github.com/go-petr/mini-bank/pkg/web"
	"github.com/rs/zerolog"
)

const (
	// AuthHeaderKey is the header carrying a bearer token.
	AuthHeaderKey = "authorization"
	// AuthTypeBearer is the only supported authorization type.
	AuthTypeBearer = "bearer"
	// AuthPayloadKey is the gin context key of the authenticated domain.Principal.
	AuthPayloadKey = "authorization_payload"
	// SessionCookie is the cookie carrying the session token.
	SessionCookie = "bank_session"
)

var (
	// ErrBadAuthHeaderFormat indicates an authorization header without a token.
	ErrBadAuthHeaderFormat = errors.New("invalid authorization header format")
	// ErrUnsupportedAuthType indicates an authorization type other than bearer.
	ErrUnsupportedAuthType = errors.New("unsupported authorization type")
)

// Authenticator resolves a session token into the caller.
//
//go:generate mockgen -source auth.go -destination auth_mock.go -package middleware
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Principal, error)
}

// AddAuthorization sets the authorization header of the request.
func AddAuthorization(request *http.Request, authorizationType, token string) {
	request.Header.Set(AuthHeaderKey, fmt.Sprintf("%s %s", authorizationType, token))
}

// SessionToken returns the token of the session cookie, or of the bearer header
// when there is no cookie. It returns domain.ErrUnauthorized when neither is set.
func SessionToken(c *gin.Context) (string, error) {
	if token, err := c.Cookie(SessionCookie); err == nil && token != "" {
		return token, nil
	}

	authorizationHeader := c.GetHeader(AuthHeaderKey)
	if authorizationHeader == "" {
		return "", domain.ErrUnauthorized
	}

	fields := strings.Fields(authorizationHeader)
	if len(fields) < 2 {
		return "", ErrBadAuthHeaderFormat
	}

	if strings.ToLower(fields[0]) != AuthTypeBearer {
		return "", ErrUnsupportedAuthType
	}

	return fields[1], nil
}

// AuthMiddleware rejects requests without a valid session and stores the
// caller under AuthPayloadKey.
func AuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		l := zerolog.Ctx(c.Request.Context())

		token, err := SessionToken(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, web.Error(err))
			return
		}

		principal, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, domain.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, web.Error(err))
				return
			}

			l.Error().Err(err).Msg("authenticate")
			c.AbortWithStatusJSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal))

			return
		}

		ctx := l.With().Int64("user_id", principal.UserID).Logger().WithContext(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)

		c.Set(AuthPayloadKey, principal)
		c.Next()
	}
}

// Principal returns the caller stored by AuthMiddleware.
func Principal(c *gin.Context) (domain.Principal, bool) {
	v, ok := c.Get(AuthPayloadKey)
	if !ok {
		return domain.Principal{}, false
	}

	p, ok := v.(domain.Principal)

	return p, ok
}
