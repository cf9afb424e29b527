package service

import (
	"context"

	"MacroPull/internal/domain/models"
)

// SnapshotProvider is the single entry point the presentation layer uses.
type SnapshotProvider interface {
	GetMacroSnapshot(ctx context.Context) *models.MacroSnapshot
	Lookup(ctx context.Context, name string) (models.IndicatorValue, bool)
}

// Registry exposes the configured indicator set.
type Registry interface {
	Specs() []models.IndicatorSpec
}
