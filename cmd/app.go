package cmd

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/theapemachine/memoria/pkg/auth"
	"github.com/theapemachine/memoria/pkg/config"
	"github.com/theapemachine/memoria/pkg/embedding"
	"github.com/theapemachine/memoria/pkg/hotreload"
	"github.com/theapemachine/memoria/pkg/memory"
	"github.com/theapemachine/memoria/pkg/metrics"
	"github.com/theapemachine/memoria/pkg/ranker"
	"github.com/theapemachine/memoria/pkg/service"
	"github.com/theapemachine/memoria/pkg/staleness"
	"github.com/theapemachine/memoria/pkg/stores"
	"github.com/theapemachine/memoria/pkg/stores/s3"
	"github.com/theapemachine/memoria/pkg/taxonomy"
	"github.com/theapemachine/memoria/pkg/tools"
)

/*
app wires the components of one process together. Every command builds
one, so the CLI, the MCP server and the admin API share the same setup.
*/
type app struct {
	resolver    *config.Resolver
	stats       *metrics.Counters
	client      *memory.Client
	embedder    *embedding.Resolver
	store       *taxonomy.Store
	archiver    *s3.Archiver
	manager     *taxonomy.Manager
	records     *memory.Service
	ranker      *ranker.Ranker
	detector    *staleness.Detector
	coordinator *hotreload.Coordinator
}

func newApp() (*app, error) {
	a := &app{
		resolver: config.NewResolver(viper.GetViper()),
		stats:    metrics.NewCounters(),
	}

	cacheSize := int64(4096)

	if viper.IsSet("cache.embeddings") {
		cacheSize = viper.GetInt64("cache.embeddings")
	}

	a.embedder = embedding.NewResolver(a.resolver.ActiveEmbedding, embedding.WithCacheSize(cacheSize))

	a.client = memory.NewClient(
		stores.Dial,
		a.resolver.ActiveConnection,
		memory.WithDimension(a.embedder.Dimension),
		memory.WithCounters(a.stats),
	)

	a.store = taxonomy.NewStore(a.resolver.TaxonomyPath())

	var managerOptions []taxonomy.ManagerOption

	if endpoint := viper.GetString("snapshots.endpoint"); endpoint != "" {
		conn, err := s3.NewConn(s3.ConnConfig{
			Endpoint:  endpoint,
			AccessKey: viper.GetString("snapshots.access_key"),
			SecretKey: viper.GetString("snapshots.secret_key"),
			Region:    viper.GetString("snapshots.region"),
			Secure:    viper.GetBool("snapshots.secure"),
		})

		if err != nil {
			return nil, err
		}

		a.archiver = s3.NewArchiver(conn, viper.GetString("snapshots.bucket"), viper.GetString("snapshots.prefix"))
		managerOptions = append(managerOptions, taxonomy.WithSnapshotter(a.archiver))
	}

	a.manager = taxonomy.NewManager(a.store, a.client, managerOptions...)
	a.records = memory.NewService(a.client, a.embedder, a.store)
	a.ranker = ranker.New(a.client, ranker.WithCounters(a.stats))
	a.detector = staleness.NewDetector(a.client)

	debounce := hotreload.DefaultDebounce

	if d := viper.GetDuration("hotreload.debounce"); d > 0 {
		debounce = d
	}

	a.coordinator = hotreload.NewCoordinator(
		a.store,
		hotreload.NewBus(a.stats),
		hotreload.WithDebounce(debounce),
		hotreload.WithCounters(a.stats),
	)

	return a, nil
}

/*
watch starts the taxonomy file watcher and the config watcher. A config
change can point at another store or embedding profile; those are picked
up per call, the trigger only refreshes the taxonomy and routing guide.
*/
func (a *app) watch(ctx context.Context) {
	if err := a.coordinator.Start(ctx); err != nil {
		log.Warn("taxonomy watcher unavailable", "error", err)
	}

	config.Watch(viper.GetViper(), a.coordinator.Trigger)
}

func (a *app) bootstrap(ctx context.Context) {
	if err := a.client.Bootstrap(ctx); err != nil {
		log.Warn("store bootstrap failed, will retry on first use", "error", err)
	}
}

func (a *app) runtime() *tools.Runtime {
	return tools.NewRuntime(tools.Deps{
		Records:  a.records,
		Ranker:   a.ranker,
		Embedder: a.embedder,
		Manager:  a.manager,
		Detector: a.detector,
		Guide:    a.coordinator.RoutingGuide,
		Project:  a.resolver.CurrentProject,
	})
}

func (a *app) admin() *service.AdminServer {
	deps := service.AdminDeps{
		Records:  a.records,
		Manager:  a.manager,
		Detector: a.detector,
		Stats:    a.stats,
		Guide:    a.coordinator.RoutingGuide,
		Auth:     adminAuth(),
	}

	if a.archiver != nil {
		deps.Snapshots = a.archiver
	}

	return service.NewAdminServer(deps)
}

func adminAuth() *auth.Service {
	return auth.NewService(viper.GetString("admin.jwt_secret"), viper.GetInt64("admin.requests_per_minute"))
}

// close lets pending access updates finish before the store goes away.
func (a *app) close() {
	done := make(chan struct{})

	go func() {
		a.ranker.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Warn("gave up waiting for access updates")
	}

	if err := a.client.Close(); err != nil {
		log.Warn("failed to close store", "error", err)
	}
}
