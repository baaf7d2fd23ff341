package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/refundlabs/saletracker/internal/domain"
)

// LogClient is the slice of the chain client the log source needs.
type LogClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, addresses []common.Address, from, to uint64) ([]types.Log, error)
}

// Source fetches factory and sale contract logs for a block range and
// normalizes them into domain events in chain order. Sale contracts are
// discovered through the factory: every projected deployment adds its token
// address to the watched set, so the source must be re-consulted after each
// batch rather than caching addresses.
type Source struct {
	client      LogClient
	deployments domain.DeploymentStore
	factory     common.Address
	logger      *slog.Logger
}

// NewSource creates a Source watching the given factory address.
func NewSource(client LogClient, deployments domain.DeploymentStore, factory string, logger *slog.Logger) *Source {
	return &Source{
		client:      client,
		deployments: deployments,
		factory:     common.HexToAddress(factory),
		logger:      logger.With(slog.String("component", "log_source")),
	}
}

// Head returns the current chain head block number.
func (s *Source) Head(ctx context.Context) (uint64, error) {
	return s.client.BlockNumber(ctx)
}

// Fetch returns all normalized events in the inclusive block range [from, to],
// ordered by ascending block number and log index. Logs with an unresolvable
// source address are dropped with a warning; logs outside the tracked event
// set are skipped; any other normalization failure aborts the fetch.
func (s *Source) Fetch(ctx context.Context, from, to uint64) ([]domain.Event, error) {
	addresses, err := s.watchedAddresses(ctx)
	if err != nil {
		return nil, err
	}

	logs, err := s.client.FilterLogs(ctx, addresses, from, to)
	if err != nil {
		return nil, fmt.Errorf("source: fetch [%d,%d]: %w", from, to, err)
	}

	// The node returns logs in chain order already; sort anyway so the
	// projector's ordering guarantee never depends on provider behavior.
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	events := make([]domain.Event, 0, len(logs))
	for _, lg := range logs {
		kind := domain.ContractSale
		if lg.Address == s.factory {
			kind = domain.ContractFactory
		}

		ev, err := Normalize(lg, kind)
		switch {
		case err == nil:
			events = append(events, ev)
		case errors.Is(err, ErrIgnoredEvent):
			continue
		case errors.Is(err, domain.ErrUnresolvableAddress):
			s.logger.WarnContext(ctx, "dropping log without source address",
				slog.Uint64("block", lg.BlockNumber),
				slog.Uint64("log_index", uint64(lg.Index)),
			)
			continue
		default:
			return nil, fmt.Errorf("source: normalize log %d-%d: %w", lg.BlockNumber, lg.Index, err)
		}
	}

	return events, nil
}

// watchedAddresses builds the filter address set: the factory plus every
// token the factory has deployed so far.
func (s *Source) watchedAddresses(ctx context.Context) ([]common.Address, error) {
	deployed, err := s.deployments.List(ctx, domain.ListOpts{})
	if err != nil {
		return nil, fmt.Errorf("source: list deployments: %w", err)
	}

	addresses := make([]common.Address, 0, len(deployed)+1)
	addresses = append(addresses, s.factory)
	for _, d := range deployed {
		addresses = append(addresses, common.HexToAddress(d.Token))
	}
	return addresses, nil
}
