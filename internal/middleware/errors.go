package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-petr/mini-bank/internal/domain"
	"github.com/go-petr/mini-bank/pkg/errorspkg"
	"github.com/go-petr/mini-bank/pkg/web"
	"github.com/rs/zerolog"
)

// Status returns the HTTP status of a service error.
func Status(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrEmailAlreadyExists):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrRecipientNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRequestInProgress),
		errors.Is(err, domain.ErrAccountAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrIdempotencyKeyReuse):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrBusy):
		return http.StatusServiceUnavailable
	}

	return http.StatusInternalServerError
}

// RespondError writes the error envelope for err. Unknown errors are logged
// and reported as errorspkg.ErrInternal.
func RespondError(gctx *gin.Context, err error) {
	status := Status(err)

	switch status {
	case http.StatusInternalServerError:
		zerolog.Ctx(gctx.Request.Context()).Error().Err(err).Send()
		err = errorspkg.ErrInternal
	case http.StatusServiceUnavailable:
		gctx.Header("Retry-After", "1")
	}

	gctx.JSON(status, web.Error(err))
}

// RespondBindError writes a 400 for a request that could not be bound.
func RespondBindError(gctx *gin.Context, err error) {
	zerolog.Ctx(gctx.Request.Context()).Info().Err(err).Send()
	gctx.JSON(http.StatusBadRequest, web.ErrorMsg(web.ValidationMessage(err)))
}
