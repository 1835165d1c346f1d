// Package web defines common components for a web application.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Response holds the error envelope shared by all APIs.
//
// Success responses are declared by each handler and always carry Success: true.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Error wraps a given err into json friendly struct.
func Error(err error) Response {
	return Response{Error: err.Error()}
}

// ErrorMsg wraps a given message into json friendly struct.
func ErrorMsg(msg string) Response {
	return Response{Error: msg}
}

// GetErrorMsg returns a human readable message for the failed field.
func GetErrorMsg(fe validator.FieldError) string {
	field := fieldName(fe.Field())

	switch fe.Tag() {
	case "required", "required_without":
		return field + " is required"
	case "email":
		return "Invalid email address"
	case "min":
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}

		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}

		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be %s digits", field, fe.Param())
	case "numeric":
		return field + " must contain only digits"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "accountnumber":
		return field + " must be 13 digits"
	case "accounttype":
		return field + " is not supported"
	}

	return "Invalid " + strings.ToLower(field)
}

// ValidationMessage turns a binding error into the message returned to the client.
func ValidationMessage(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return GetErrorMsg(ve[0])
	}

	var ute *json.UnmarshalTypeError
	if errors.As(err, &ute) {
		return "Invalid " + strings.ReplaceAll(ute.Field, "_", " ")
	}

	if errors.Is(err, io.EOF) {
		return "Request body is required"
	}

	return "Invalid request body"
}

// fieldName converts a Go field name into words: ToAccount -> To account.
func fieldName(s string) string {
	var sb strings.Builder

	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			sb.WriteByte(' ')
			r += 'a' - 'A'
		}

		sb.WriteRune(r)
	}

	return sb.String()
}
