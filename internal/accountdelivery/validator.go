package accountdelivery

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-petr/mini-bank/internal/domain"
	"github.com/go-playground/validator/v10"
)

// ValidAccountNumber validates that the field holds a 13 digit account number.
var ValidAccountNumber validator.Func = func(fl validator.FieldLevel) bool {
	if n, ok := fl.Field().Interface().(string); ok {
		return domain.IsAccountNumber(n)
	}

	return false
}

// ValidAccountType validates whether the account type is supported.
var ValidAccountType validator.Func = func(fl validator.FieldLevel) bool {
	if t, ok := fl.Field().Interface().(string); ok {
		return domain.IsAccountType(t)
	}

	return false
}

var (
	registerOnce sync.Once
	registerErr  error
)

// RegisterValidators registers the accountnumber and accounttype tags with gin's
// validator. Only the first call registers them.
func RegisterValidators() error {
	registerOnce.Do(func() {
		registerErr = register()
	})

	return registerErr
}

func register() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}

	if err := v.RegisterValidation("accountnumber", ValidAccountNumber); err != nil {
		return fmt.Errorf("register accountnumber: %w", err)
	}

	if err := v.RegisterValidation("accounttype", ValidAccountType); err != nil {
		return fmt.Errorf("register accounttype: %w", err)
	}

	return nil
}
