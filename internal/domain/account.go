// Package domain provides definitions of all entities.
package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Account types.
const (
	AccountTypeSavings = "savings"
	AccountTypeCurrent = "current"
)

// Account numbers are AccountNumberPrefix followed by 9 digits.
const (
	AccountNumberPrefix = "1001"
	AccountNumberLength = 13
)

var (
	// ErrAccountNotFound indicates that the caller has no such account.
	ErrAccountNotFound = errors.New("No account found")
	// ErrRecipientNotFound indicates that the transfer destination does not exist.
	ErrRecipientNotFound = errors.New("Recipient account not found")
	// ErrAccountAlreadyExists indicates that the owner already has an account of the type.
	ErrAccountAlreadyExists = errors.New("Account already exists")
	// ErrAccountNumberTaken indicates an account number collision.
	ErrAccountNumberTaken = errors.New("account number already taken")
	// ErrOwnerNotFound indicates that the owner for the account is not found.
	ErrOwnerNotFound = errors.New("owner not found")
	// ErrForbidden indicates that the account belongs to another user.
	ErrForbidden = errors.New("Account does not belong to the user")
	// ErrInsufficientFunds indicates that the balance would become negative.
	ErrInsufficientFunds = errors.New("Insufficient balance")
	// ErrBusy indicates that the account lock could not be acquired in time. It is safe to retry.
	ErrBusy = errors.New("Account is busy, please retry")
)

// Account holds the balance of a user account.
type Account struct {
	Number    string          `json:"account_number"`
	OwnerID   int64           `json:"owner_id"`
	Type      string          `json:"account_type"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}

// CreateAccountParams is the input data to create an account.
type CreateAccountParams struct {
	Number  string
	OwnerID int64
	Type    string
}

// IsAccountType reports whether t is a supported account type.
func IsAccountType(t string) bool {
	return t == AccountTypeSavings || t == AccountTypeCurrent
}

// IsAccountNumber reports whether s is a well-formed account number.
func IsAccountNumber(s string) bool {
	if len(s) != AccountNumberLength {
		return false
	}

	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return true
}
