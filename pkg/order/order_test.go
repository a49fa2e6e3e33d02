package order

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func validRequest() SubmitRequest {
	return SubmitRequest{
		Asset:    "BTC-USDT",
		Side:     Buy,
		Quantity: decimal.NewFromInt(2),
		Price:    decimal.NewFromInt(100),
		Duration: "5 minutes",
		UserID:   "alice",
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "30 seconds", want: 30 * time.Second},
		{in: "1 minute", want: time.Minute},
		{in: "3 hours", want: 3 * time.Hour},
		{in: "2 days", want: 48 * time.Hour},
		{in: "1 weeks", want: 7 * 24 * time.Hour},
		{in: "0 hours", wantErr: true},
		{in: "-1 days", wantErr: true},
		{in: "3 fortnights", wantErr: true},
		{in: "soon", wantErr: true},
		{in: "520 weeks", want: 520 * 7 * 24 * time.Hour},
		{in: "100000000 weeks", wantErr: true},
		{in: "9223372036854775807 seconds", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewOrder(t *testing.T) {
	o, err := New(validRequest(), t0)
	require.NoError(t, err)

	assert.Equal(t, StatusNew, o.Status)
	assert.False(t, o.Expired)
	assert.Nil(t, o.ModifiedAt)
	assert.Equal(t, t0.Add(5*time.Minute), o.ExpiresAt())
	assert.True(t, o.Open())
	assert.False(t, o.Matchable())
}

func TestNewOrderValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SubmitRequest)
	}{
		{"empty asset", func(r *SubmitRequest) { r.Asset = " " }},
		{"bad side", func(r *SubmitRequest) { r.Side = "HOLD" }},
		{"zero quantity", func(r *SubmitRequest) { r.Quantity = decimal.Zero }},
		{"negative price", func(r *SubmitRequest) { r.Price = decimal.NewFromInt(-1) }},
		{"missing user", func(r *SubmitRequest) { r.UserID = "" }},
		{"huge price", func(r *SubmitRequest) { r.Price = decimal.RequireFromString("1e20000000") }},
		{"price above max", func(r *SubmitRequest) { r.Price = MaxAmount.Add(decimal.NewFromInt(1)) }},
		{"too many decimals", func(r *SubmitRequest) { r.Quantity = decimal.RequireFromString("1e-19") }},
		{"tiny quantity", func(r *SubmitRequest) { r.Quantity = decimal.RequireFromString("1e-100000000") }},
		{"overflowing duration", func(r *SubmitRequest) { r.Duration = "100000000 weeks" }},
		{"bad duration", func(r *SubmitRequest) { r.Duration = "7 eons" }},
		{"no expiration", func(r *SubmitRequest) { r.Duration = "" }},
		{"both expirations", func(r *SubmitRequest) { r.Expiration = t0.Add(time.Hour) }},
		{"past expiration", func(r *SubmitRequest) { r.Duration = ""; r.Expiration = t0.Add(-time.Second) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			_, err := New(req, t0)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestAmountBoundsAreInclusive(t *testing.T) {
	req := validRequest()
	req.Price = MaxAmount
	req.Quantity = decimal.RequireFromString("0.000000000000000001")
	o, err := New(req, t0)
	require.NoError(t, err)
	assert.True(t, o.Price.Equal(MaxAmount))
}

func TestApplyRecordsHistory(t *testing.T) {
	o, err := New(validRequest(), t0)
	require.NoError(t, err)

	later := t0.Add(time.Minute)
	require.NoError(t, Apply(o, PriceChange{Price: decimal.NewFromInt(110)}, later))
	require.Len(t, o.History, 1)
	assert.Equal(t, HistoryEntry{Field: FieldPrice, OldValue: "100", NewValue: "110", Timestamp: later}, o.History[0])
	assert.True(t, o.Price.Equal(decimal.NewFromInt(110)))
	require.NotNil(t, o.ModifiedAt)
	assert.Equal(t, later, *o.ModifiedAt)

	require.NoError(t, Apply(o, QuantityChange{Quantity: decimal.NewFromInt(1)}, later))
	require.Len(t, o.History, 2)
	assert.Equal(t, "2", o.History[1].OldValue)

	exp := t0.Add(time.Hour)
	require.NoError(t, Apply(o, ExpirationChange{Expiration: exp}, later))
	require.Len(t, o.History, 3)
	assert.Equal(t, t0.Add(5*time.Minute).Format(time.RFC3339Nano), o.History[2].OldValue)
	assert.Empty(t, o.Duration)
	assert.Equal(t, exp, o.ExpiresAt())
}

func TestApplyRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		mod  Modification
	}{
		{"zero price", PriceChange{Price: decimal.Zero}},
		{"negative quantity", QuantityChange{Quantity: decimal.NewFromInt(-3)}},
		{"quantity increase", QuantityChange{Quantity: decimal.NewFromInt(3)}},
		{"past expiration", ExpirationChange{Expiration: t0.Add(-time.Hour)}},
		{"huge price", PriceChange{Price: decimal.RequireFromString("1e20000000")}},
		{"too many decimals", QuantityChange{Quantity: decimal.RequireFromString("0.0000000000000000001")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := New(validRequest(), t0)
			require.NoError(t, err)
			before := o.Clone()

			err = Apply(o, tt.mod, t0)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, before, o)
		})
	}
}

func TestParseModification(t *testing.T) {
	m, err := ParseModification("price", "101.5")
	require.NoError(t, err)
	assert.Equal(t, FieldPrice, m.Field())

	m, err = ParseModification("expiration", "2030-01-01T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, FieldExpiration, m.Field())

	_, err = ParseModification("side", "SELL")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ParseModification("quantity", "lots")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Errorf(KindNotFound, "accept", "o1", "no such order"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Contains(t, err.Error(), "accept o1: no such order")
}

func TestCloneIsDeep(t *testing.T) {
	o, err := New(validRequest(), t0)
	require.NoError(t, err)
	require.NoError(t, Apply(o, PriceChange{Price: decimal.NewFromInt(120)}, t0))

	c := o.Clone()
	c.History[0].NewValue = "999"
	*c.ModifiedAt = t0.Add(time.Hour)

	assert.Equal(t, "120", o.History[0].NewValue)
	assert.Equal(t, t0, *o.ModifiedAt)
}
