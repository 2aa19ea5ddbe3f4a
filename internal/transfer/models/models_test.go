package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "hie-gateway/pkg/domain-errors"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newParams() NewTransferParams {
	return NewTransferParams{
		ID:             "req-1",
		ConsentID:      "consent-1",
		SubjectID:      "patient-1",
		SourceID:       "hip-1",
		DestinationID:  "hiu-1",
		CareContextIDs: []string{"cc-1"},
		DataTypes:      []string{"PRESCRIPTION", "LAB_REPORT"},
		MaxRetries:     DefaultMaxRetries,
		TTL:            DefaultTTL,
		Now:            t0,
	}
}

func TestNewTransfer(t *testing.T) {
	t.Run("starts REQUESTED and due now", func(t *testing.T) {
		tr, err := NewTransfer(newParams())
		require.NoError(t, err)
		assert.Equal(t, StatusRequested, tr.Status)
		assert.Equal(t, t0, tr.NextActionAt)
		assert.Equal(t, t0.Add(24*time.Hour), tr.ExpiresAt)
		assert.Equal(t, 2, tr.ItemCount)
		assert.Equal(t, int64(1), tr.Version)
		assert.False(t, tr.HasPayload())
	})

	t.Run("zero ttl is expired at creation", func(t *testing.T) {
		p := newParams()
		p.TTL = 0
		tr, err := NewTransfer(p)
		require.NoError(t, err)
		assert.True(t, tr.IsExpired(t0))
		assert.False(t, tr.IsDue(t0))
	})

	t.Run("rejects missing endpoints", func(t *testing.T) {
		p := newParams()
		p.SourceID = ""
		_, err := NewTransfer(p)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("rejects negative budget", func(t *testing.T) {
		p := newParams()
		p.MaxRetries = -1
		_, err := NewTransfer(p)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func TestStatusTransitions(t *testing.T) {
	t.Run("terminal statuses have no outgoing edges", func(t *testing.T) {
		for _, from := range []Status{StatusDelivered, StatusExpired} {
			for _, to := range AllStatuses {
				assert.False(t, from.CanTransitionTo(to), "%s -> %s", from, to)
			}
		}
	})

	t.Run("every non-terminal status can expire", func(t *testing.T) {
		for _, s := range NonTerminal() {
			assert.True(t, s.CanTransitionTo(StatusExpired), s)
		}
	})

	t.Run("payload cannot jump straight from REQUESTED", func(t *testing.T) {
		assert.False(t, StatusRequested.CanTransitionTo(StatusReady))
		assert.False(t, StatusRequested.AcceptsPayload())
		assert.True(t, StatusForwarded.AcceptsPayload())
		assert.True(t, StatusProcessing.AcceptsPayload())
	})

	t.Run("processing is only reachable from forwarded", func(t *testing.T) {
		for _, from := range AllStatuses {
			assert.Equal(t, from == StatusForwarded, from.CanTransitionTo(StatusProcessing), from)
		}
	})
}

func TestIsDue(t *testing.T) {
	tr, err := NewTransfer(newParams())
	require.NoError(t, err)

	assert.True(t, tr.IsDue(t0))

	tr.NextActionAt = t0.Add(time.Minute)
	assert.False(t, tr.IsDue(t0), "future action")

	tr.NextActionAt = t0
	tr.Status = StatusFailed
	tr.RetryCount = tr.MaxRetries
	assert.False(t, tr.IsDue(t0), "exhausted failure")

	tr.RetryCount = 1
	assert.True(t, tr.IsDue(t0), "retryable failure")

	tr.Status = StatusDelivered
	assert.False(t, tr.IsDue(t0))
}

func TestCloneIsDeep(t *testing.T) {
	tr, err := NewTransfer(newParams())
	require.NoError(t, err)
	tr.EncryptedPayload = []byte{1, 2, 3}
	tr.SetError("boom")

	c := tr.Clone()
	c.EncryptedPayload[0] = 9
	c.DataTypes[0] = "X"
	*c.LastError = "changed"

	assert.Equal(t, byte(1), tr.EncryptedPayload[0])
	assert.Equal(t, "PRESCRIPTION", tr.DataTypes[0])
	assert.Equal(t, "boom", *tr.LastError)
}
