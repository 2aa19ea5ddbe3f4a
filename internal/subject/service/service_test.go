package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hie-gateway/internal/audit"
	"hie-gateway/internal/subject/models"
	"hie-gateway/internal/subject/store"
	id "hie-gateway/pkg/domain"
	dErrors "hie-gateway/pkg/domain-errors"
)

var now = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func newService(autoCreate bool) (*Service, *store.InMemoryStore, *audit.InMemoryStore) {
	st := store.New()
	trail := audit.NewInMemoryStore()
	svc := New(st, slog.New(slog.DiscardHandler),
		WithAutoCreate(autoCreate),
		WithClock(func() time.Time { return now }),
		WithAuditor(audit.NewPublisher(trail)),
	)
	return svc, st, trail
}

func TestEnsureAutoCreates(t *testing.T) {
	svc, _, _ := newService(true)

	subject, err := svc.Ensure(context.Background(), "pt-7")
	require.NoError(t, err)
	assert.Equal(t, "Patient pt-7", subject.DisplayName)
	assert.Equal(t, now, subject.CreatedAt)
}

func TestEnsureReturnsExisting(t *testing.T) {
	svc, st, _ := newService(true)
	_, _, err := st.Create(context.Background(), &models.Subject{ID: "pt-1", DisplayName: "Asha Rao", CreatedAt: now.Add(-time.Hour)})
	require.NoError(t, err)

	subject, err := svc.Ensure(context.Background(), "pt-1")
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", subject.DisplayName)
}

func TestEnsureWithoutAutoCreateIsNotFound(t *testing.T) {
	svc, _, _ := newService(false)

	_, err := svc.Ensure(context.Background(), "pt-9")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestEnsureConcurrentCreatesOnce(t *testing.T) {
	svc, _, trail := newService(true)

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			_, err := svc.Ensure(context.Background(), "pt-race")
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	// one audit event per real insert
	assert.Len(t, subjectEvents(trail), 1)
}

func TestEnsureStoreFailureIsInternal(t *testing.T) {
	svc := New(failingStore{}, slog.New(slog.DiscardHandler))
	_, err := svc.Ensure(context.Background(), "pt-1")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

func subjectEvents(trail *audit.InMemoryStore) []audit.Event {
	events, _ := trail.List(context.Background(), "")
	return events
}

type failingStore struct{}

func (failingStore) Create(context.Context, *models.Subject) (*models.Subject, bool, error) {
	return nil, false, errors.New("db down")
}

func (failingStore) Get(context.Context, id.SubjectID) (*models.Subject, error) {
	return nil, errors.New("db down")
}
