package web

import (
	"encoding/json"
	"io"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Email     string `validate:"required,email"`
	Password  string `validate:"min=6"`
	Phone     string `validate:"len=10,numeric"`
	ToAccount string `validate:"required"`
	Type      string `validate:"oneof=savings current"`
}

func TestGetErrorMsg(t *testing.T) {
	t.Parallel()

	valid := sample{
		Email:     "john@email.com",
		Password:  "secret",
		Phone:     "0123456789",
		ToAccount: "1001123451234",
		Type:      "savings",
	}

	testCases := []struct {
		name   string
		modify func(s *sample)
		want   string
	}{
		{
			name:   "Required",
			modify: func(s *sample) { s.ToAccount = "" },
			want:   "To account is required",
		},
		{
			name:   "Email",
			modify: func(s *sample) { s.Email = "john" },
			want:   "Invalid email address",
		},
		{
			name:   "Min",
			modify: func(s *sample) { s.Password = "abc" },
			want:   "Password must be at least 6 characters",
		},
		{
			name:   "Len",
			modify: func(s *sample) { s.Phone = "123" },
			want:   "Phone must be 10 digits",
		},
		{
			name:   "OneOf",
			modify: func(s *sample) { s.Type = "gold" },
			want:   "Type must be one of: savings, current",
		},
	}

	v := validator.New()

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := valid
			tc.modify(&s)

			err := v.Struct(s)
			require.Error(t, err)
			require.Equal(t, tc.want, ValidationMessage(err))
		})
	}
}

func TestValidationMessageDecodeErrors(t *testing.T) {
	t.Parallel()

	var dst struct {
		Amount json.Number `json:"amount"`
		Limit  int         `json:"limit"`
	}

	err := json.Unmarshal([]byte(`{"limit":"ten"}`), &dst)
	require.Error(t, err)
	require.Equal(t, "Invalid limit", ValidationMessage(err))

	require.Equal(t, "Request body is required", ValidationMessage(io.EOF))
	require.Equal(t, "Invalid request body", ValidationMessage(&json.SyntaxError{}))
}

func TestError(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(ErrorMsg("Please login first"))
	require.NoError(t, err)
	require.JSONEq(t, `{"success":false,"error":"Please login first"}`, string(b))
}
