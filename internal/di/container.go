// Package di provides dependency injection container setup for the catalog
// core.
package di

import (
	"github.com/samber/do/v2"

	"github.com/openshelf/openshelf-server/internal/classify"
	"github.com/openshelf/openshelf-server/internal/config"
	"github.com/openshelf/openshelf-server/internal/di/providers"
	"github.com/openshelf/openshelf-server/internal/graph"
	"github.com/openshelf/openshelf-server/internal/importer"
	"github.com/openshelf/openshelf-server/internal/logger"
	"github.com/openshelf/openshelf-server/internal/service"
)

// NewContainer creates the DI container with all providers registered.
func NewContainer() *do.RootScope {
	injector := do.New()

	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideSlogLogger)

	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideClosureCache)
	do.Provide(injector, providers.ProvideWorkIndex)

	do.Provide(injector, providers.ProvideGraph)
	do.Provide(injector, providers.ProvideClassifierClient)
	do.Provide(injector, providers.ProvideEvaluatorClient)

	do.Provide(injector, providers.ProvideClusterService)
	do.Provide(injector, providers.ProvidePresentationService)
	do.Provide(injector, providers.ProvideImporter)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle
// management. This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.ClosureCacheHandle](injector)
	_ = do.MustInvoke[*providers.SearchIndexHandle](injector)
	_ = do.MustInvoke[*graph.Graph](injector)
	_ = do.MustInvoke[*classify.Client](injector)
	_ = do.MustInvoke[*classify.EvaluatorClient](injector)
	_ = do.MustInvoke[*service.ClusterService](injector)
	_ = do.MustInvoke[*service.PresentationService](injector)
	_ = do.MustInvoke[*importer.Importer](injector)

	providers.TriggerSearchReindexIfNeeded(injector)

	return nil
}
