package providers

import (
	"github.com/samber/do/v2"

	"github.com/openshelf/openshelf-server/internal/champion"
	"github.com/openshelf/openshelf-server/internal/classify"
	"github.com/openshelf/openshelf-server/internal/config"
	"github.com/openshelf/openshelf-server/internal/graph"
	"github.com/openshelf/openshelf-server/internal/importer"
	"github.com/openshelf/openshelf-server/internal/logger"
	"github.com/openshelf/openshelf-server/internal/service"
)

// ProvideGraph provides the identity graph over the store's equivalencies.
func ProvideGraph(i do.Injector) (*graph.Graph, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	cacheHandle := do.MustInvoke[*ClosureCacheHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return graph.New(storeHandle.Store, cacheHandle.Cache, log.Logger), nil
}

// ProvideClassifierClient provides the external classification service client.
func ProvideClassifierClient(i do.Injector) (*classify.Client, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return classify.NewClient(cfg.Classifier, log.Logger), nil
}

// ProvideEvaluatorClient provides the external summary evaluator client.
func ProvideEvaluatorClient(i do.Injector) (*classify.EvaluatorClient, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return classify.NewEvaluatorClient(cfg.Evaluator, log.Logger), nil
}

// ProvideClusterService provides the work clustering engine.
func ProvideClusterService(i do.Injector) (*service.ClusterService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewClusterService(storeHandle.Store, champion.DefaultOpenAccessPolicy(), cfg.Cluster, log.Logger), nil
}

// ProvidePresentationService provides the presentation recompute pipeline.
// Construction wires it into the cluster service as its recomputer.
func ProvidePresentationService(i do.Injector) (*service.PresentationService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	g := do.MustInvoke[*graph.Graph](i)
	classifier := do.MustInvoke[*classify.Client](i)
	evaluator := do.MustInvoke[*classify.EvaluatorClient](i)
	cluster := do.MustInvoke[*service.ClusterService](i)
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewPresentationService(
		storeHandle.Store,
		g,
		classifier,
		evaluator,
		cluster,
		cfg.Graph,
		log.Logger,
	), nil
}

// ProvideImporter provides the catalog record importer.
func ProvideImporter(i do.Injector) (*importer.Importer, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	g := do.MustInvoke[*graph.Graph](i)
	cluster := do.MustInvoke[*service.ClusterService](i)
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return importer.New(storeHandle.Store, g, cluster, cfg.Cluster, log.Logger), nil
}
