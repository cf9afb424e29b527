package repository

import (
	"context"
	"errors"

	"MacroPull/internal/domain/models"
	domrepo "MacroPull/internal/domain/repository"
)

// MessagePublisher is satisfied by *kafka.Producer.
type MessagePublisher interface {
	Publish(ctx context.Context, key []byte, value interface{}) error
	Close() error
}

// SnapshotEvent is the message written for every snapshot.
type SnapshotEvent struct {
	Type     string                `json:"type"`
	Snapshot *models.MacroSnapshot `json:"snapshot"`
}

const snapshotEventType = "macro.snapshot.v1"

// KafkaSnapshotPublisher emits each snapshot as one JSON message keyed by snapshot id.
type KafkaSnapshotPublisher struct {
	p MessagePublisher
}

var _ domrepo.SnapshotSink = (*KafkaSnapshotPublisher)(nil)

func NewKafkaSnapshotPublisher(p MessagePublisher) *KafkaSnapshotPublisher {
	return &KafkaSnapshotPublisher{p: p}
}

func (k *KafkaSnapshotPublisher) Name() string { return "kafka" }

func (k *KafkaSnapshotPublisher) Publish(ctx context.Context, snap *models.MacroSnapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	return k.p.Publish(ctx, []byte(snap.ID.String()), SnapshotEvent{Type: snapshotEventType, Snapshot: snap})
}

func (k *KafkaSnapshotPublisher) Close() error {
	return k.p.Close()
}
