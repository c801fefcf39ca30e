package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/core-coin/go-core/v2"
	"github.com/core-coin/go-core/v2/accounts/abi"
	"github.com/core-coin/go-core/v2/accounts/abi/bind"
	"github.com/core-coin/go-core/v2/common"
	"github.com/core-coin/go-core/v2/core/types"
	"github.com/core-coin/go-core/v2/xcbclient"

	"github.com/core-coin/handlemint/internal/config"
	"github.com/core-coin/handlemint/internal/models"
	"github.com/core-coin/handlemint/pkg/logger"
)

const (
	// BlockHeaderChannelBuffer is the buffer size for the block header channel
	// Sized to handle ~1.5 minute of blocks assuming ~7s block time
	BlockHeaderChannelBuffer = 15

	requestTimeout = 10 * time.Second
)

type Gocore struct {
	logger   *logger.Logger
	config   *config.Config
	apiURL   string
	client   *xcbclient.Client
	decimals int

	mu           sync.RWMutex
	subscription core.Subscription

	registry *bind.BoundContract
}

// NewGocore creates a new Gocore instance.
func NewGocore(apiURL string, logger *logger.Logger, config *config.Config) *Gocore {
	return &Gocore{apiURL: apiURL, logger: logger, config: config, decimals: config.AmountDecimals}
}

func (g *Gocore) Run() error {
	err := g.ConnectToRPC()
	if err != nil {
		return fmt.Errorf("failed to connect to the core RPC server: %w", err)
	}
	err = g.BuildBindings()
	if err != nil {
		return fmt.Errorf("failed to build bindings: %w", err)
	}
	return nil
}

func (g *Gocore) ConnectToRPC() error {
	client, err := xcbclient.Dial(g.apiURL)
	if err != nil {
		return fmt.Errorf("failed to connect to the core RPC server: %w", err)
	}
	g.client = client
	return nil
}

func (g *Gocore) BuildBindings() error {
	registryAddress, err := common.HexToAddress(g.config.HandleRegistryAddress)
	if err != nil {
		return fmt.Errorf("failed to parse handle registry address: %w", err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(HandleRegistryABI))
	if err != nil {
		return fmt.Errorf("failed to parse handle registry ABI: %w", err)
	}

	g.registry = bind.NewBoundContract(registryAddress, parsedABI, g.client, g.client, g.client)
	return nil
}

func (g *Gocore) NewHeaderSubscription(ctx context.Context) (core.Subscription, <-chan *types.Header, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	// Unsubscribe from previous subscription if it exists to prevent resource leak
	if g.subscription != nil {
		g.subscription.Unsubscribe()
		g.subscription = nil
	}

	channel := make(chan *types.Header, BlockHeaderChannelBuffer)

	subscription, err := g.client.SubscribeNewHead(ctx, channel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to subscribe to new head: %w", err)
	}
	g.subscription = subscription

	return subscription, channel, nil
}

func (g *Gocore) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.subscription != nil {
		g.subscription.Unsubscribe()
		g.subscription = nil
	}
	if g.client != nil {
		g.client.Close()
	}

	return nil
}

func (g *Gocore) GetBlockByNumber(ctx context.Context, number uint64) (*types.Block, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	block, err := g.client.BlockByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, fmt.Errorf("failed to get block by number: %w", err)
	}

	return block, nil
}

// CheckBalances returns the balance of every address that parses. Addresses that
// don't parse or fail to load are left out, so the caller retries them next cycle.
func (g *Gocore) CheckBalances(ctx context.Context, addresses []string) ([]*models.AddressBalance, error) {
	balances := make([]*models.AddressBalance, 0, len(addresses))
	for _, address := range addresses {
		amount, err := g.GetAddressBalance(ctx, address)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.logger.Warnw("Failed to get balance", "address", address, "error", err)
			continue
		}
		balances = append(balances, &models.AddressBalance{Address: address, Amount: amount})
	}
	return balances, nil
}

func (g *Gocore) GetAddressBalance(ctx context.Context, address string) (int64, error) {
	addr, err := common.HexToAddress(address)
	if err != nil {
		return 0, fmt.Errorf("failed to parse address %s: %w", address, err)
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	balance, err := g.client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return ToMinorUnits(balance, g.decimals), nil
}

// GetTransactionStatus maps a transaction to in_ledger (with depth), pending, expired
// or unknown. A reverted transaction is expired. One the node has never seen or has
// dropped is unknown, and the caller decides when that becomes final.
func (g *Gocore) GetTransactionStatus(ctx context.Context, txID string) (*models.TransactionStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	hash := common.HexToHash(txID)
	receipt, err := g.client.TransactionReceipt(ctx, hash)
	if errors.Is(err, core.NotFound) {
		_, _, err := g.client.TransactionByHash(ctx, hash)
		if errors.Is(err, core.NotFound) {
			return &models.TransactionStatus{Status: models.TxStatusUnknown}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get transaction: %w", err)
		}
		// still in the mempool, or mined with the receipt not indexed yet
		return &models.TransactionStatus{Status: models.TxStatusPending}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return &models.TransactionStatus{Status: models.TxStatusExpired}, nil
	}

	head, err := g.client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get block number: %w", err)
	}
	return &models.TransactionStatus{
		Status: models.TxStatusInLedger,
		Depth:  Depth(head, receipt.BlockNumber.Uint64()),
	}, nil
}

// HandleExistsOnChain asks the registry how many times handle was minted.
func (g *Gocore) HandleExistsOnChain(ctx context.Context, handle string) (*models.HandleExistence, error) {
	count, err := g.callUint(ctx, methodMintCount, handle)
	if err != nil {
		return nil, fmt.Errorf("failed to check handle %s: %w", handle, err)
	}
	return &models.HandleExistence{
		Exists:    count.Sign() > 0,
		Duplicate: count.Cmp(big.NewInt(1)) > 0,
	}, nil
}

func (g *Gocore) TotalHandles(ctx context.Context) (int64, error) {
	total, err := g.callUint(ctx, methodTotalSupply)
	if err != nil {
		return 0, fmt.Errorf("failed to get total handles: %w", err)
	}
	return total.Int64(), nil
}

// GetChainLoad is the pending transaction count relative to mempoolCapacity, capped at 1.
func (g *Gocore) GetChainLoad(ctx context.Context, mempoolCapacity int64) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	pending, err := g.client.PendingTransactionCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending transaction count: %w", err)
	}
	return ChainLoad(uint64(pending), mempoolCapacity), nil
}

func (g *Gocore) callUint(ctx context.Context, method string, params ...interface{}) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	results := []interface{}{}
	if err := g.registry.Call(&bind.CallOpts{Context: ctx}, &results, method, params...); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%s returned no results", method)
	}
	value, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s returned %T", method, results[0])
	}
	return value, nil
}

// ToMinorUnits drops decimals from a chain amount. Amounts beyond int64 saturate.
func ToMinorUnits(amount *big.Int, decimals int) int64 {
	if amount == nil {
		return 0
	}
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	minor := new(big.Int).Quo(amount, divisor)
	if !minor.IsInt64() {
		if minor.Sign() < 0 {
			return math.MinInt64
		}
		return math.MaxInt64
	}
	return minor.Int64()
}

// Depth counts the inclusion block itself, so a transaction in the head block has depth 1.
func Depth(head, included uint64) uint64 {
	if head < included {
		return 0
	}
	return head - included + 1
}

func ChainLoad(pending uint64, capacity int64) float64 {
	if capacity <= 0 {
		return 0
	}
	load := float64(pending) / float64(capacity)
	if load > 1 {
		return 1
	}
	return load
}
