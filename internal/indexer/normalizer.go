// Package indexer consumes factory and sale contract logs from the chain,
// normalizes them into domain events, and projects them into the append-only
// entity tables.
package indexer

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/refundlabs/saletracker/internal/chain"
	"github.com/refundlabs/saletracker/internal/domain"
)

// ErrIgnoredEvent marks a log whose topic is not part of the tracked event
// set (e.g. plain ERC-20 Transfer events on a token contract). These are
// skipped without a warning; they are expected traffic, not a mismatch.
var ErrIgnoredEvent = errors.New("ignored event")

var (
	topicTokenDeployed = chain.FactoryABI.Events["RefundableTokenDeployed"].ID
	topicSaleCreated   = chain.SaleABI.Events["SaleCreated"].ID
	topicPurchased     = chain.SaleABI.Events["Purchased"].ID
	topicRefunded      = chain.SaleABI.Events["Refunded"].ID
)

// Normalize maps a raw log plus its originating contract kind into one of the
// closed set of domain events.
//
// Error classes follow the projector's recovery policy: a log without an
// attributable source address yields domain.ErrUnresolvableAddress (drop and
// continue); a log outside the tracked topic set yields ErrIgnoredEvent
// (skip silently); every other failure wraps domain.ErrMalformedEvent and
// must halt indexing, because it signals an ABI mismatch that would corrupt
// derived state if ignored.
func Normalize(log types.Log, kind domain.ContractKind) (domain.Event, error) {
	if log.Address == (common.Address{}) {
		return nil, fmt.Errorf("log %d-%d: %w", log.BlockNumber, log.Index, domain.ErrUnresolvableAddress)
	}
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("log %d-%d has no topics: %w", log.BlockNumber, log.Index, domain.ErrMalformedEvent)
	}

	meta := domain.EventMeta{
		ID:          eventID(log),
		Token:       lowerAddr(log.Address),
		BlockNumber: log.BlockNumber,
		LogIndex:    uint64(log.Index),
		TxHash:      strings.ToLower(log.TxHash.Hex()),
	}

	switch kind {
	case domain.ContractFactory:
		if log.Topics[0] != topicTokenDeployed {
			return nil, ErrIgnoredEvent
		}
		return normalizeTokenDeployed(log, meta)
	case domain.ContractSale:
		switch log.Topics[0] {
		case topicSaleCreated:
			return normalizeSaleCreated(log, meta)
		case topicPurchased:
			return normalizePurchased(log, meta)
		case topicRefunded:
			return normalizeRefunded(log, meta)
		default:
			return nil, ErrIgnoredEvent
		}
	default:
		return nil, fmt.Errorf("unknown contract kind %q: %w", kind, domain.ErrMalformedEvent)
	}
}

// eventID derives the stream-unique idempotency key from the log's chain
// position. Block number and log index identify exactly one emitted log.
func eventID(log types.Log) string {
	return fmt.Sprintf("%d-%d", log.BlockNumber, log.Index)
}

func lowerAddr(a common.Address) string {
	return strings.ToLower(a.Hex())
}

func normalizeTokenDeployed(log types.Log, meta domain.EventMeta) (domain.Event, error) {
	if len(log.Topics) != 4 {
		return nil, malformed("RefundableTokenDeployed", meta, fmt.Errorf("want 4 topics, got %d", len(log.Topics)))
	}

	vals, err := chain.FactoryABI.Unpack("RefundableTokenDeployed", log.Data)
	if err != nil {
		return nil, malformed("RefundableTokenDeployed", meta, err)
	}
	name, okName := vals[0].(string)
	symbol, okSymbol := vals[1].(string)
	maxSupply, okSupply := vals[2].(*big.Int)
	if !okName || !okSymbol || !okSupply || maxSupply == nil {
		return nil, malformed("RefundableTokenDeployed", meta, errors.New("unexpected argument types"))
	}

	// The deployment event describes the child token; the log itself comes
	// from the factory, so the token address is the first indexed argument.
	meta.Token = lowerAddr(common.BytesToAddress(log.Topics[1].Bytes()))

	return domain.TokenDeployed{
		EventMeta:   meta,
		Deployer:    lowerAddr(common.BytesToAddress(log.Topics[2].Bytes())),
		Beneficiary: lowerAddr(common.BytesToAddress(log.Topics[3].Bytes())),
		Name:        name,
		Symbol:      symbol,
		MaxSupply:   maxSupply,
	}, nil
}

func normalizeSaleCreated(log types.Log, meta domain.EventMeta) (domain.Event, error) {
	vals, err := chain.SaleABI.Unpack("SaleCreated", log.Data)
	if err != nil {
		return nil, malformed("SaleCreated", meta, err)
	}

	saleAmount, ok1 := vals[0].(*big.Int)
	purchasePrice, ok2 := vals[1].(*big.Int)
	startBlock, ok3 := vals[2].(*big.Int)
	endBlock, ok4 := vals[3].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, malformed("SaleCreated", meta, errors.New("unexpected argument types"))
	}
	if !startBlock.IsUint64() || !endBlock.IsUint64() {
		return nil, malformed("SaleCreated", meta, errors.New("block bound out of uint64 range"))
	}

	return domain.SaleCreated{
		EventMeta:      meta,
		SaleAmount:     saleAmount,
		PurchasePrice:  purchasePrice,
		SaleStartBlock: startBlock.Uint64(),
		SaleEndBlock:   endBlock.Uint64(),
	}, nil
}

func normalizePurchased(log types.Log, meta domain.EventMeta) (domain.Event, error) {
	if len(log.Topics) != 2 {
		return nil, malformed("Purchased", meta, fmt.Errorf("want 2 topics, got %d", len(log.Topics)))
	}

	vals, err := chain.SaleABI.Unpack("Purchased", log.Data)
	if err != nil {
		return nil, malformed("Purchased", meta, err)
	}
	tokens, ok1 := vals[0].(*big.Int)
	funding, ok2 := vals[1].(*big.Int)
	if !ok1 || !ok2 {
		return nil, malformed("Purchased", meta, errors.New("unexpected argument types"))
	}

	return domain.Purchased{
		EventMeta:          meta,
		Buyer:              lowerAddr(common.BytesToAddress(log.Topics[1].Bytes())),
		TokensPurchased:    tokens,
		FundingAmountSpent: funding,
	}, nil
}

func normalizeRefunded(log types.Log, meta domain.EventMeta) (domain.Event, error) {
	if len(log.Topics) != 2 {
		return nil, malformed("Refunded", meta, fmt.Errorf("want 2 topics, got %d", len(log.Topics)))
	}

	vals, err := chain.SaleABI.Unpack("Refunded", log.Data)
	if err != nil {
		return nil, malformed("Refunded", meta, err)
	}
	tokens, ok1 := vals[0].(*big.Int)
	funding, ok2 := vals[1].(*big.Int)
	if !ok1 || !ok2 {
		return nil, malformed("Refunded", meta, errors.New("unexpected argument types"))
	}

	return domain.Refunded{
		EventMeta:          meta,
		Refunder:           lowerAddr(common.BytesToAddress(log.Topics[1].Bytes())),
		TokenAmount:        tokens,
		FundingTokenAmount: funding,
	}, nil
}

func malformed(event string, meta domain.EventMeta, cause error) error {
	return fmt.Errorf("%s at %s (tx %s): %v: %w", event, meta.ID, meta.TxHash, cause, domain.ErrMalformedEvent)
}
