package di

import (
	"errors"

	internalrepo "MacroPull/internal/repository"
	"MacroPull/internal/services/indicators"
	"MacroPull/internal/usecase"
	pkgcache "MacroPull/pkg/cache"
	applogger "MacroPull/pkg/logger"
)

// Tooling is the dependency set of the command line client: no HTTP server,
// no refresh loop.
type Tooling struct {
	Logger   *applogger.Logger
	Service  *usecase.MacroService
	Registry *indicators.Registry
	History  *internalrepo.CHSnapshotStore
	Store    pkgcache.Store
}

// Close waits for pending snapshot publishes and releases connections.
func (t *Tooling) Close() error {
	t.Service.Stop()

	var errs []error
	if t.History != nil {
		errs = append(errs, t.History.Close())
	}
	if t.Store != nil {
		errs = append(errs, t.Store.Close())
	}
	return errors.Join(errs...)
}
