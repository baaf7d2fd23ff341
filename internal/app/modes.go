package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/refundlabs/saletracker/internal/aggregate"
	"github.com/refundlabs/saletracker/internal/indexer"
	"github.com/refundlabs/saletracker/internal/notify"
	"github.com/refundlabs/saletracker/internal/server"
	"github.com/refundlabs/saletracker/internal/server/handler"
	"github.com/refundlabs/saletracker/internal/server/ws"
	"github.com/refundlabs/saletracker/internal/service"
)

// IndexMode runs only the event-indexing loop: scan logs, project entities,
// advance the checkpoint. An API process in serve mode can run alongside it
// against the same database.
func (a *App) IndexMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting index mode")

	orch := a.buildOrchestrator(deps)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return orch.Run(ctx)
	})
	return g.Wait()
}

// ServeMode runs the HTTP + WebSocket API and the background summary refresh
// loop, without indexing. It expects another process to keep the database
// current.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	saleSvc := a.buildSaleService(deps)

	g.Go(func() error {
		return saleSvc.RunRefresh(ctx, a.cfg.Indexer.RefreshInterval.Duration)
	})

	a.startHTTPServer(ctx, g, deps, saleSvc)
	return g.Wait()
}

// FullMode runs the indexer, the refresh loop, and the API server in one
// process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	orch := a.buildOrchestrator(deps)
	g.Go(func() error {
		return orch.Run(ctx)
	})

	saleSvc := a.buildSaleService(deps)
	g.Go(func() error {
		return saleSvc.RunRefresh(ctx, a.cfg.Indexer.RefreshInterval.Duration)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, saleSvc)
	}

	return g.Wait()
}

// buildOrchestrator assembles the indexing pipeline from wired dependencies.
func (a *App) buildOrchestrator(deps *Dependencies) *indexer.Orchestrator {
	source := indexer.NewSource(
		deps.Chain,
		deps.DeploymentStore,
		a.cfg.Chain.FactoryAddress,
		a.logger,
	)
	projector := indexer.NewProjector(
		deps.DeploymentStore,
		deps.SaleConfigStore,
		deps.ActivityStore,
		a.logger,
	)
	return indexer.NewOrchestrator(
		source,
		projector,
		deps.CheckpointStore,
		deps.SummaryCache,
		deps.SignalBus,
		a.buildNotifier(),
		indexer.Config{
			StartBlock:    a.cfg.Chain.StartBlock,
			PollInterval:  a.cfg.Indexer.PollInterval.Duration,
			MaxBlockRange: a.cfg.Indexer.MaxBlockRange,
		},
		a.logger,
	)
}

// buildNotifier assembles the alert channels from config. Returns nil when no
// channel is configured so the orchestrator skips alerting entirely.
func (a *App) buildNotifier() indexer.Notifier {
	var senders []notify.Sender
	if a.cfg.Notify.TelegramToken != "" && a.cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			a.cfg.Notify.TelegramToken,
			a.cfg.Notify.TelegramChatID,
		))
	}
	if a.cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(a.cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) == 0 {
		return nil
	}
	return notify.NewNotifier(senders, a.cfg.Notify.Events, a.logger)
}

// buildSaleService assembles the aggregation engine and the service facade.
func (a *App) buildSaleService(deps *Dependencies) *service.SaleService {
	engine := aggregate.New(
		deps.DeploymentStore,
		deps.SaleConfigStore,
		deps.ActivityStore,
		deps.CheckpointStore,
		deps.Chain,
		a.cfg.Chain.BlockTimeSeconds,
		a.logger,
	)
	return service.NewSaleService(
		engine,
		deps.DeploymentStore,
		deps.SaleConfigStore,
		deps.ActivityStore,
		deps.SummaryCache,
		deps.SignalBus,
		a.logger,
	)
}

// startHTTPServer registers handlers, attaches the WebSocket hub when a
// signal bus is available, and runs the server under the errgroup.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, saleSvc *service.SaleService) {
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(deps.CheckpointStore, a.logger),
		Deployments: handler.NewDeploymentHandler(saleSvc, a.logger),
		Sales:       handler.NewSaleHandler(saleSvc, a.logger),
		Stats:       handler.NewStatsHandler(saleSvc, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
