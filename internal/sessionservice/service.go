// Package sessionservice manages login sessions.
package sessionservice

import (
	"context"
	"errors"
	"time"

	"github.com/go-petr/mini-bank/internal/domain"
	"github.com/go-petr/mini-bank/pkg/configpkg"
	"github.com/go-petr/mini-bank/pkg/errorspkg"
	"github.com/go-petr/mini-bank/pkg/tokenpkg"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Repo provides data access layer interface needed by session service layer.
//
//go:generate mockgen -source service.go -destination service_mock.go -package sessionservice
type Repo interface {
	Create(ctx context.Context, arg domain.CreateSessionParams) (domain.Session, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Session, error)
	Block(ctx context.Context, id uuid.UUID) error
}

// Service facilitates session service layer logic.
type Service struct {
	repo       Repo
	TokenMaker tokenpkg.Maker
	duration   time.Duration
}

// New returns session service struct to manage sessions.
func New(sr Repo, config configpkg.Config, tm tokenpkg.Maker) (*Service, error) {
	if tm == nil {
		return nil, errors.New("token maker is required")
	}

	if config.SessionDuration <= 0 {
		return nil, errors.New("session duration must be positive")
	}

	return &Service{
		repo:       sr,
		TokenMaker: tm,
		duration:   config.SessionDuration,
	}, nil
}

// Create issues a token for the user and stores the session it identifies.
func (s *Service) Create(ctx context.Context, user domain.UserWithoutPassword, userAgent, clientIP string) (string, domain.Session, error) {
	l := zerolog.Ctx(ctx)

	subject := tokenpkg.Subject{UserID: user.ID, Email: user.Email, Name: user.Name}

	token, payload, err := s.TokenMaker.CreateToken(subject, s.duration)
	if err != nil {
		l.Error().Err(err).Send()
		return "", domain.Session{}, errorspkg.ErrInternal
	}

	arg := domain.CreateSessionParams{
		ID:        payload.ID,
		UserID:    user.ID,
		UserAgent: userAgent,
		ClientIP:  clientIP,
		ExpiresAt: payload.ExpiredAt,
	}

	sess, err := s.repo.Create(ctx, arg)
	if err != nil {
		return "", domain.Session{}, err
	}

	return token, sess, nil
}

// Authenticate returns the caller identified by the token.
//
// Every failure is reported as domain.ErrUnauthorized.
func (s *Service) Authenticate(ctx context.Context, token string) (domain.Principal, error) {
	l := zerolog.Ctx(ctx)

	payload, err := s.TokenMaker.VerifyToken(token)
	if err != nil {
		l.Info().Err(err).Msg("invalid session token")
		return domain.Principal{}, domain.ErrUnauthorized
	}

	sess, err := s.repo.Get(ctx, payload.ID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			l.Info().Err(err).Send()
			return domain.Principal{}, domain.ErrUnauthorized
		}

		return domain.Principal{}, err
	}

	switch {
	case sess.IsBlocked:
		err = domain.ErrBlockedSession
	case sess.UserID != payload.UserID:
		err = errors.New("session user mismatch")
	case time.Now().After(sess.ExpiresAt):
		err = domain.ErrExpiredSession
	}

	if err != nil {
		l.Info().Err(err).Str("session_id", sess.ID.String()).Send()
		return domain.Principal{}, domain.ErrUnauthorized
	}

	return domain.Principal{
		UserID:    payload.UserID,
		SessionID: payload.ID,
		Email:     payload.Email,
		Name:      payload.Name,
	}, nil
}

// Logout blocks the session of the token. An invalid token is ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	payload, err := s.TokenMaker.VerifyToken(token)
	if err != nil {
		return nil
	}

	return s.repo.Block(ctx, payload.ID)
}
