package moneypkg

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input   string
		want    string
		wantErr error
	}{
		{input: "500", want: "500.00"},
		{input: " 1500.5 ", want: "1500.50"},
		{input: "0.01", want: "0.01"},
		{input: "10.500", want: "10.50"},
		{input: "-3.25", want: "-3.25"},
		{input: "1e2", want: "100.00"},
		{input: "0.001", wantErr: ErrTooPrecise},
		{input: "12.345", wantErr: ErrTooPrecise},
		{input: "abc", wantErr: ErrInvalidAmount},
		{input: "", wantErr: ErrInvalidAmount},
		{input: "1000000000000000", wantErr: ErrTooLarge},
		{input: "999999999999999.99", want: "999999999999999.99"},
		{input: "1.000000000000000000", want: "1.00"},
		{input: "1e-19", wantErr: ErrTooPrecise},
		{input: "1e-2000000000", wantErr: ErrTooPrecise},
		{input: "1E2000000000", wantErr: ErrTooLarge},
		{input: "0e2000000000", want: "0.00"},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.input, func(t *testing.T) {
			t.Parallel()

			got, err := Parse(tc.input)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.want, String(got))
		})
	}
}

func TestParseHugeExponentIsFast(t *testing.T) {
	t.Parallel()

	start := time.Now()

	for _, s := range []string{"1e-2147483647", "1e2147483647", "-5E-999999999", "7e999999999"} {
		_, err := Parse(s)
		require.Error(t, err, s)
	}

	require.Less(t, time.Since(start), time.Second)
}

func TestJSON(t *testing.T) {
	t.Parallel()

	payload, err := json.Marshal(struct {
		NewBalance json.Number `json:"new_balance"`
	}{JSON(decimal.RequireFromString("1500"))})

	require.NoError(t, err)
	require.JSONEq(t, `{"new_balance":1500.00}`, string(payload))
}

func TestNoRoundingDrift(t *testing.T) {
	t.Parallel()

	balance := decimal.RequireFromString("1000.00")

	for _, s := range []string{"0.10", "0.20", "0.30", "19.99", "1234.56"} {
		amount, err := Parse(s)
		require.NoError(t, err)

		got := balance.Add(amount).Sub(amount)
		require.True(t, got.Equal(balance), "%s drifted to %s", s, got)
	}
}
