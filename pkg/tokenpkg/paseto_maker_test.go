package tokenpkg

import (
	"testing"
	"time"

	"github.com/go-petr/mini-bank/pkg/randompkg"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestPasetoMaker(t *testing.T) {
	t.Parallel()

	secretKey := randompkg.String(32)

	maker, err := NewPasetoMaker(secretKey)
	if err != nil {
		t.Fatalf("NewPasetoMaker(%v) returned error: %v", secretKey, err)
	}

	subject := randomSubject()
	duration := time.Minute

	token, payload, err := maker.CreateToken(subject, duration)
	if err != nil {
		t.Errorf("maker.CreateToken(%v, %v) returned error: %v", subject, duration, err)
	}

	verified, err := maker.VerifyToken(token)
	if err != nil {
		t.Errorf("maker.VerifyToken(%v) returned error: %v", token, err)
	}

	want := &Payload{
		UserID:    subject.UserID,
		Email:     subject.Email,
		Name:      subject.Name,
		IssuedAt:  time.Now(),
		ExpiredAt: time.Now().Add(duration),
	}

	ignore := cmpopts.IgnoreFields(Payload{}, "ID")
	delta := cmpopts.EquateApproxTime(time.Minute)

	if diff := cmp.Diff(payload, want, ignore, delta); diff != "" {
		t.Errorf("maker.CreateToken(%v, %v) returned unexpected diff: %v", subject, duration, diff)
	}

	if diff := cmp.Diff(verified, payload, delta); diff != "" {
		t.Errorf("maker.VerifyToken(%v) returned unexpected diff: %v", token, diff)
	}
}

func TestExpiredPasetoToken(t *testing.T) {
	t.Parallel()

	secretKey := randompkg.String(32)

	maker, err := NewPasetoMaker(secretKey)
	if err != nil {
		t.Fatalf("NewPasetoMaker(%v) returned error: %v", secretKey, err)
	}

	subject := randomSubject()
	duration := -time.Minute

	token, _, err := maker.CreateToken(subject, duration)
	if err != nil {
		t.Errorf("maker.CreateToken(%v, %v) returned error: %v", subject, duration, err)
	}

	_, err = maker.VerifyToken(token)
	if err != ErrExpiredToken {
		t.Errorf("maker.VerifyToken(%v) returned unexpected error: %v", token, err)
	}
}

func TestNewMaker(t *testing.T) {
	t.Parallel()

	key := randompkg.String(32)

	if _, err := NewMaker(KindPaseto, key); err != nil {
		t.Errorf("NewMaker(%q) returned error: %v", KindPaseto, err)
	}

	if _, err := NewMaker(KindJWT, key); err != nil {
		t.Errorf("NewMaker(%q) returned error: %v", KindJWT, err)
	}

	if _, err := NewMaker("other", key); err == nil {
		t.Errorf("NewMaker(%q) returned nil error", "other")
	}
}
