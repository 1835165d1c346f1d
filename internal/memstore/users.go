package memstore

import (
	"context"
	"time"

	"github.com/go-petr/mini-bank/internal/domain"
	"github.com/google/uuid"
)

// UserRepo stores users in memory.
type UserRepo struct {
	s *Store
}

// Create creates the user and then returns it.
func (r *UserRepo) Create(ctx context.Context, arg domain.CreateUserParams) (domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.emails[arg.Email]; ok {
		return domain.User{}, domain.ErrEmailAlreadyExists
	}

	r.s.nextUserID++

	u := domain.User{
		ID:             r.s.nextUserID,
		Name:           arg.Name,
		Email:          arg.Email,
		Phone:          arg.Phone,
		HashedPassword: arg.HashedPassword,
		CreatedAt:      r.s.now().UTC(),
	}

	r.s.users[u.ID] = u
	r.s.emails[u.Email] = u.ID

	return u, nil
}

// Get returns the user with the given id.
func (r *UserRepo) Get(ctx context.Context, id int64) (domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}

	return u, nil
}

// GetByEmail returns the user with the given email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.emails[email]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}

	return r.s.users[id], nil
}

// SessionRepo stores sessions in memory.
type SessionRepo struct {
	s *Store
}

// Create creates the session and then returns it.
func (r *SessionRepo) Create(ctx context.Context, arg domain.CreateSessionParams) (domain.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[arg.UserID]; !ok {
		return domain.Session{}, domain.ErrUserNotFound
	}

	sess := domain.Session{
		ID:        arg.ID,
		UserID:    arg.UserID,
		UserAgent: arg.UserAgent,
		ClientIP:  arg.ClientIP,
		ExpiresAt: arg.ExpiresAt,
		CreatedAt: r.s.now().UTC(),
	}

	r.s.sessions[sess.ID] = sess

	return sess, nil
}

// Get returns session with the given id.
func (r *SessionRepo) Get(ctx context.Context, id uuid.UUID) (domain.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	sess, ok := r.s.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}

	return sess, nil
}

// Block marks the session as blocked.
func (r *SessionRepo) Block(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if sess, ok := r.s.sessions[id]; ok {
		sess.IsBlocked = true
		r.s.sessions[id] = sess
	}

	return nil
}

// DeleteExpired removes sessions that expired before now.
func (r *SessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64

	for id, sess := range r.s.sessions {
		if sess.ExpiresAt.Before(now) {
			delete(r.s.sessions, id)
			n++
		}
	}

	return n, nil
}
