package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client is the tracker's chain-read collaborator. One instance is shared by
// all concurrent aggregations; the underlying ethclient is safe for
// concurrent use.
type Client struct {
	eth *ethclient.Client
}

// Dial connects to the given RPC endpoint and verifies it responds.
func Dial(ctx context.Context, rpcURL string) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}
	if _, err := eth.ChainID(ctx); err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: chain id probe: %w", err)
	}
	return &Client{eth: eth}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// BlockNumber returns the current head block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain: block number: %w", err)
	}
	return n, nil
}

// FilterLogs fetches all logs emitted by the given addresses in the inclusive
// block range [from, to].
func (c *Client) FilterLogs(ctx context.Context, addresses []common.Address, from, to uint64) ([]types.Log, error) {
	logs, err := c.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: addresses,
	})
	if err != nil {
		return nil, fmt.Errorf("chain: filter logs [%d,%d]: %w", from, to, err)
	}
	return logs, nil
}

// RemainingTokensForSale reads the sale contract's remainingTokensForSale().
func (c *Client) RemainingTokensForSale(ctx context.Context, token string) (*big.Int, error) {
	return c.callUint256(ctx, token, SaleABI, "remainingTokensForSale")
}

// FundingTokensHeld reads the sale contract's fundingTokensHeld().
func (c *Client) FundingTokensHeld(ctx context.Context, token string) (*big.Int, error) {
	return c.callUint256(ctx, token, SaleABI, "fundingTokensHeld")
}

// TotalFundsClaimed reads the sale contract's totalFundsClaimed().
func (c *Client) TotalFundsClaimed(ctx context.Context, token string) (*big.Int, error) {
	return c.callUint256(ctx, token, SaleABI, "totalFundsClaimed")
}

// FundingToken reads the sale contract's FUNDING_TOKEN address.
func (c *Client) FundingToken(ctx context.Context, token string) (string, error) {
	out, err := c.call(ctx, token, SaleABI, "FUNDING_TOKEN")
	if err != nil {
		return "", err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return "", fmt.Errorf("chain: FUNDING_TOKEN on %s: unexpected return type %T", token, out[0])
	}
	return strings.ToLower(addr.Hex()), nil
}

// ERC20Metadata reads symbol() and decimals() of an ERC-20 token.
func (c *Client) ERC20Metadata(ctx context.Context, token string) (string, uint8, error) {
	symOut, err := c.call(ctx, token, ERC20ABI, "symbol")
	if err != nil {
		return "", 0, err
	}
	symbol, ok := symOut[0].(string)
	if !ok {
		return "", 0, fmt.Errorf("chain: symbol on %s: unexpected return type %T", token, symOut[0])
	}

	decOut, err := c.call(ctx, token, ERC20ABI, "decimals")
	if err != nil {
		return "", 0, err
	}
	decimals, ok := decOut[0].(uint8)
	if !ok {
		return "", 0, fmt.Errorf("chain: decimals on %s: unexpected return type %T", token, decOut[0])
	}

	return symbol, decimals, nil
}

// callUint256 performs a no-argument view call returning a single uint256.
func (c *Client) callUint256(ctx context.Context, token string, contractABI abi.ABI, method string) (*big.Int, error) {
	out, err := c.call(ctx, token, contractABI, method)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: %s on %s: unexpected return type %T", method, token, out[0])
	}
	return v, nil
}

// call packs a no-argument view call, executes it against the latest block,
// and unpacks the outputs.
func (c *Client) call(ctx context.Context, token string, contractABI abi.ABI, method string) ([]interface{}, error) {
	input, err := contractABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}

	to := common.HexToAddress(token)
	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: call %s on %s: %w", method, token, err)
	}

	out, err := contractABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack %s on %s: %w", method, token, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("chain: %s on %s: empty return", method, token)
	}
	return out, nil
}
