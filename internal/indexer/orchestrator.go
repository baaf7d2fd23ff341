package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/refundlabs/saletracker/internal/domain"
)

// Config holds the indexing loop parameters.
type Config struct {
	// StartBlock is the factory deployment block, used when no checkpoint
	// exists yet.
	StartBlock uint64
	// PollInterval is how often the loop probes the chain head for new
	// blocks once caught up.
	PollInterval time.Duration
	// MaxBlockRange caps the span of a single FilterLogs call so backfills
	// stay within provider limits.
	MaxBlockRange uint64
}

// Notifier receives operator alerts for noteworthy on-chain events. The
// orchestrator only raises alerts once the initial backfill has completed, so
// a fresh index of historical blocks does not flood the channels.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Alert event types passed to the Notifier.
const (
	eventTokenDeployed = "token_deployed"
	eventSaleCreated   = "sale_created"
)

// Orchestrator drives the indexing loop: poll the head, fetch and normalize
// the next block range, project it, advance the checkpoint. A fatal
// normalization error stops the loop; everything derived stays consistent up
// to the last committed checkpoint.
type Orchestrator struct {
	source     *Source
	projector  *Projector
	checkpoint domain.CheckpointStore
	cache      domain.SummaryCache // optional; invalidated per touched token
	bus        domain.SignalBus    // optional; live event fan-out to push consumers
	notifier   Notifier            // optional; alerts on live deployments
	cfg        Config
	logger     *slog.Logger

	live bool // true once the initial backfill has caught up to the head
}

// NewOrchestrator creates an indexing Orchestrator. cache, bus and notifier
// may be nil.
func NewOrchestrator(
	source *Source,
	projector *Projector,
	checkpoint domain.CheckpointStore,
	cache domain.SummaryCache,
	bus domain.SignalBus,
	notifier Notifier,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxBlockRange == 0 {
		cfg.MaxBlockRange = 2000
	}
	return &Orchestrator{
		source:     source,
		projector:  projector,
		checkpoint: checkpoint,
		cache:      cache,
		bus:        bus,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "indexer")),
	}
}

// Run blocks until ctx is cancelled or indexing fails fatally. It first
// backfills from the checkpoint to the head, then follows the head on the
// poll interval.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.InfoContext(ctx, "indexer starting",
		slog.Uint64("start_block", o.cfg.StartBlock),
		slog.Duration("poll_interval", o.cfg.PollInterval),
	)

	// Catch up immediately on start.
	if err := o.syncOnce(ctx); err != nil {
		return err
	}
	o.live = true

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.InfoContext(ctx, "indexer stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := o.syncOnce(ctx); err != nil {
				return err
			}
		}
	}
}

// syncOnce advances the checkpoint to the current head, one bounded block
// range at a time. Live-read failures are transient: they are logged and
// retried on the next tick rather than stopping the loop.
func (o *Orchestrator) syncOnce(ctx context.Context) error {
	head, err := o.source.Head(ctx)
	if err != nil {
		o.logger.WarnContext(ctx, "head probe failed, will retry",
			slog.String("error", err.Error()),
		)
		return nil
	}

	from, err := o.nextBlock(ctx)
	if err != nil {
		return err
	}

	for from <= head {
		if err := ctx.Err(); err != nil {
			return err
		}

		to := from + o.cfg.MaxBlockRange - 1
		if to > head {
			to = head
		}

		if err := o.processRange(ctx, from, to); err != nil {
			if isFatal(err) {
				return err
			}
			o.logger.WarnContext(ctx, "range processing failed, will retry",
				slog.Uint64("from", from),
				slog.Uint64("to", to),
				slog.String("error", err.Error()),
			)
			return nil
		}

		if err := o.checkpoint.Set(ctx, to); err != nil {
			return fmt.Errorf("indexer: persist checkpoint %d: %w", to, err)
		}
		from = to + 1
	}

	return nil
}

// processRange fetches and projects one block range. When the range contains
// new token deployments the same range is rescanned so logs the child
// contracts emitted before they entered the filter set are picked up;
// replaying already-projected events is a no-op by idempotency. Tokens do not
// deploy further contracts, so one extra pass always converges.
func (o *Orchestrator) processRange(ctx context.Context, from, to uint64) error {
	events, err := o.projectRange(ctx, from, to)
	if err != nil {
		return err
	}

	if containsDeployment(events) {
		o.logger.InfoContext(ctx, "rescanning range for child contract logs",
			slog.Uint64("from", from),
			slog.Uint64("to", to),
		)
		// The second fetch sees the enlarged address set and returns a
		// superset of the first pass.
		events, err = o.projectRange(ctx, from, to)
		if err != nil {
			return err
		}
	}

	o.announce(ctx, events)
	o.signal(ctx, events)
	return nil
}

// announce raises operator alerts for deployments and sale creations. Alerts
// are suppressed during the initial backfill; delivery failures are logged
// and never fail the indexing loop.
func (o *Orchestrator) announce(ctx context.Context, events []domain.Event) {
	if o.notifier == nil || !o.live {
		return
	}
	for _, ev := range events {
		var event, title, message string
		switch e := ev.(type) {
		case domain.TokenDeployed:
			event = eventTokenDeployed
			title = "New token deployed"
			message = fmt.Sprintf("%s (%s)\nToken: %s\nDeployer: %s\nBlock: %d",
				e.Name, e.Symbol, e.Token, e.Deployer, e.BlockNumber)
		case domain.SaleCreated:
			event = eventSaleCreated
			title = "Sale created"
			message = fmt.Sprintf("Token: %s\nSale amount: %s\nPrice: %s\nBlocks: %d-%d",
				e.Token, e.SaleAmount, e.PurchasePrice, e.SaleStartBlock, e.SaleEndBlock)
		default:
			continue
		}
		if err := o.notifier.Notify(ctx, event, title, message); err != nil {
			o.logger.WarnContext(ctx, "alert delivery failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
}

// deploymentSignal and activitySignal are the bus payloads for live indexed
// events. Amounts are decimal strings, matching the HTTP DTOs.
type deploymentSignal struct {
	Token       string `json:"token"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Deployer    string `json:"deployer"`
	BlockNumber uint64 `json:"blockNumber"`
	TxHash      string `json:"txHash"`
}

type activitySignal struct {
	Token         string `json:"token"`
	Kind          string `json:"kind"`
	Account       string `json:"account"`
	TokenAmount   string `json:"tokenAmount"`
	FundingAmount string `json:"fundingAmount"`
	BlockNumber   uint64 `json:"blockNumber"`
	TxHash        string `json:"txHash"`
}

// signal fans live deployments and activity out on the bus so push consumers
// see new rows without polling. Sale configs are not signalled here: the
// aggregation refresh republishes summaries on its own channel. Suppressed
// during the initial backfill like alerts; publish failures never fail the
// indexing loop.
func (o *Orchestrator) signal(ctx context.Context, events []domain.Event) {
	if o.bus == nil || !o.live {
		return
	}
	for _, ev := range events {
		var (
			channel string
			payload any
		)
		switch e := ev.(type) {
		case domain.TokenDeployed:
			channel = domain.ChannelDeployments
			payload = deploymentSignal{
				Token:       e.Token,
				Name:        e.Name,
				Symbol:      e.Symbol,
				Deployer:    e.Deployer,
				BlockNumber: e.BlockNumber,
				TxHash:      e.TxHash,
			}
		case domain.Purchased:
			channel = domain.ChannelActivity
			payload = activitySignal{
				Token:         e.Token,
				Kind:          string(domain.ActivityPurchase),
				Account:       e.Buyer,
				TokenAmount:   e.TokensPurchased.String(),
				FundingAmount: e.FundingAmountSpent.String(),
				BlockNumber:   e.BlockNumber,
				TxHash:        e.TxHash,
			}
		case domain.Refunded:
			channel = domain.ChannelActivity
			payload = activitySignal{
				Token:         e.Token,
				Kind:          string(domain.ActivityRefund),
				Account:       e.Refunder,
				TokenAmount:   e.TokenAmount.String(),
				FundingAmount: e.FundingTokenAmount.String(),
				BlockNumber:   e.BlockNumber,
				TxHash:        e.TxHash,
			}
		default:
			continue
		}
		body, err := json.Marshal(payload)
		if err != nil {
			o.logger.WarnContext(ctx, "signal marshal failed",
				slog.String("channel", channel),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := o.bus.Publish(ctx, channel, body); err != nil {
			o.logger.WarnContext(ctx, "signal publish failed",
				slog.String("channel", channel),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (o *Orchestrator) projectRange(ctx context.Context, from, to uint64) ([]domain.Event, error) {
	events, err := o.source.Fetch(ctx, from, to)
	if err != nil {
		return nil, err
	}

	touched, err := o.projector.ApplyBatch(ctx, events)
	if err != nil {
		return nil, err
	}

	if len(events) > 0 {
		o.logger.InfoContext(ctx, "block range projected",
			slog.Uint64("from", from),
			slog.Uint64("to", to),
			slog.Int("events", len(events)),
		)
	}

	o.invalidate(ctx, touched)
	return events, nil
}

func (o *Orchestrator) invalidate(ctx context.Context, tokens []string) {
	if o.cache == nil {
		return
	}
	for _, t := range tokens {
		if err := o.cache.Invalidate(ctx, t); err != nil {
			o.logger.WarnContext(ctx, "summary cache invalidate failed",
				slog.String("token", t),
				slog.String("error", err.Error()),
			)
		}
	}
}

// nextBlock returns the first unprocessed block: checkpoint + 1, or the
// configured start block when no checkpoint exists yet.
func (o *Orchestrator) nextBlock(ctx context.Context) (uint64, error) {
	cp, ok, err := o.checkpoint.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("indexer: load checkpoint: %w", err)
	}
	if !ok {
		return o.cfg.StartBlock, nil
	}
	return cp + 1, nil
}

func containsDeployment(events []domain.Event) bool {
	for _, ev := range events {
		if _, ok := ev.(domain.TokenDeployed); ok {
			return true
		}
	}
	return false
}

// isFatal reports whether a range-processing error must stop the loop.
// Malformed events indicate an ABI mismatch; continuing would corrupt derived
// state. Everything else (network hiccups, provider limits) is retried.
func isFatal(err error) bool {
	return errors.Is(err, domain.ErrMalformedEvent) || errors.Is(err, context.Canceled)
}
