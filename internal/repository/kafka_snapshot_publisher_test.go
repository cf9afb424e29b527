package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"MacroPull/internal/domain/models"
)

type publisherMock struct {
	mock.Mock
}

func (m *publisherMock) Publish(ctx context.Context, key []byte, value interface{}) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *publisherMock) Close() error { return m.Called().Error(0) }

func testSnapshot() *models.MacroSnapshot {
	return &models.MacroSnapshot{
		ID:          uuid.MustParse("6f1c2d4e-8a5b-4c3d-9e7f-0a1b2c3d4e5f"),
		GeneratedAt: time.Date(2025, 6, 23, 9, 0, 0, 0, time.UTC),
		Values: map[string]models.IndicatorValue{
			"repo_rate": {Value: models.Float(2.0), Source: models.ProvenanceLive, Period: "2025-06-23"},
		},
	}
}

func TestKafkaSnapshotPublisher_KeysBySnapshotID(t *testing.T) {
	snap := testSnapshot()
	pm := &publisherMock{}
	pm.On("Publish", mock.Anything, []byte(snap.ID.String()), SnapshotEvent{Type: "macro.snapshot.v1", Snapshot: snap}).
		Return(nil).Once()

	k := NewKafkaSnapshotPublisher(pm)
	require.NoError(t, k.Publish(context.Background(), snap))
	assert.Equal(t, "kafka", k.Name())
	pm.AssertExpectations(t)
}

func TestKafkaSnapshotPublisher_PropagatesErrors(t *testing.T) {
	pm := &publisherMock{}
	pm.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	k := NewKafkaSnapshotPublisher(pm)
	require.EqualError(t, k.Publish(context.Background(), testSnapshot()), "broker down")
	require.Error(t, k.Publish(context.Background(), nil))
}
