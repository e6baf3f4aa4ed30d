package quota_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zsprackett/quota-tray/internal/quota"
)

func TestFormatTokens(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1_000, "1.0K"},
		{3_450, "3.5K"},
		{1_000_000, "1.0M"},
		{12_340_000, "12.3M"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, quota.FormatTokens(tc.in), "FormatTokens(%d)", tc.in)
	}
}

func TestAsRefreshError(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, quota.AsRefreshError(nil))
	})

	t.Run("wrapped refresh error is unwrapped", func(t *testing.T) {
		err := fmt.Errorf("cycle: %w", quota.NewUnauthorized())
		re := quota.AsRefreshError(err)
		require.NotNil(t, re)
		assert.Equal(t, quota.Unauthorized, re.Kind)
	})

	t.Run("unknown errors are network failures", func(t *testing.T) {
		re := quota.AsRefreshError(errors.New("connection reset"))
		require.NotNil(t, re)
		assert.Equal(t, quota.NetworkFailure, re.Kind)
		assert.Contains(t, re.Message, "connection reset")
	})
}

func TestRefreshErrorIs(t *testing.T) {
	assert.ErrorIs(t, quota.NewUnauthorized(), quota.ErrUnauthorized)
	assert.ErrorIs(t, quota.NewNotConfigured(), quota.ErrNotConfigured)
	assert.NotErrorIs(t, quota.NewNotConfigured(), quota.ErrUnauthorized)
	assert.ErrorIs(t, quota.NewAPIError(500, "boom"), &quota.RefreshError{Kind: quota.APIError})
	assert.NotErrorIs(t, quota.NewAPIError(500, "boom"), &quota.RefreshError{Kind: quota.APIError, Code: 502})
}

func TestCanonicalMessages(t *testing.T) {
	assert.Equal(t, "not configured", quota.NewNotConfigured().Error())
	assert.Equal(t, "incomplete configuration", quota.NewInvalidConfiguration().Error())
	assert.Equal(t, "API error (503): down", quota.NewAPIError(503, "down").Error())
}

func TestTokenLimit(t *testing.T) {
	var nilSnap *quota.Snapshot
	_, ok := nilSnap.TokenLimit()
	assert.False(t, ok)

	s := &quota.Snapshot{Limits: []quota.Limit{
		{Type: quota.LimitTime, Usage: 100},
		{Type: quota.LimitTokens, Usage: 5_000_000, CurrentValue: 1_200_000},
	}}
	l, ok := s.TokenLimit()
	require.True(t, ok)
	assert.Equal(t, int64(1_200_000), l.CurrentValue)
}
