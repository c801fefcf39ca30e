package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/core-coin/go-core/v2"
	"github.com/core-coin/go-core/v2/common"
	"github.com/core-coin/go-core/v2/core/types"

	"github.com/core-coin/handlemint/internal/models"
	"github.com/core-coin/handlemint/pkg/logger"
	"github.com/core-coin/handlemint/pkg/validation"
)

const resubscribeDelay = 5 * time.Second

// HeaderSource is the part of the chain client the watcher needs.
type HeaderSource interface {
	NewHeaderSubscription(ctx context.Context) (core.Subscription, <-chan *types.Header, error)
	GetBlockByNumber(ctx context.Context, number uint64) (*types.Block, error)
}

// PaymentLedger records transfers that land on payment addresses.
type PaymentLedger interface {
	IsPaymentAddress(ctx context.Context, address string) (bool, error)
	AddPayment(ctx context.Context, payment *models.Payment) error
}

// Watcher follows new blocks and records inbound transfers to payment addresses,
// so the reconciler knows who paid and where to refund.
type Watcher struct {
	logger   *logger.Logger
	source   HeaderSource
	ledger   PaymentLedger
	decimals int
	signer   types.Signer
	now      func() time.Time
}

func NewWatcher(source HeaderSource, ledger PaymentLedger, decimals int, logger *logger.Logger) *Watcher {
	return &Watcher{
		logger:   logger,
		source:   source,
		ledger:   ledger,
		decimals: decimals,
		signer:   types.NewNucleusSigner(big.NewInt(int64(common.DefaultNetworkID))),
		now:      time.Now,
	}
}

// Run watches new heads until ctx is done, resubscribing when the subscription drops.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		subscription, headers, err := w.source.NewHeaderSubscription(ctx)
		if err != nil {
			w.logger.Errorw("Failed to subscribe to new head", "error", err)
		} else {
			w.consume(ctx, subscription, headers)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(resubscribeDelay):
			w.logger.Debug("Restarting subscription to new head")
		}
	}
}

func (w *Watcher) consume(ctx context.Context, subscription core.Subscription, headers <-chan *types.Header) {
	defer subscription.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-subscription.Err():
			w.logger.Errorw("Header subscription dropped", "error", err)
			return
		case header, ok := <-headers:
			if !ok {
				w.logger.Error("Channel closed, restarting subscription")
				return
			}
			if header.EmptyBody() {
				continue
			}
			block, err := w.source.GetBlockByNumber(ctx, header.Number.Uint64())
			if err != nil {
				w.logger.Errorw("Failed to get block by number", "number", header.Number, "error", err)
				continue
			}
			w.checkBlock(ctx, block)
		}
	}
}

func (w *Watcher) checkBlock(ctx context.Context, block *types.Block) {
	for _, tx := range block.Transactions() {
		if tx.To() == nil || tx.Value().Sign() <= 0 {
			continue
		}
		sender, err := w.signer.Sender(tx)
		if err != nil {
			w.logger.Warnw("Failed to get sender", "tx", tx.Hash().Hex(), "error", err)
			continue
		}
		transfer := &Transfer{
			From:        sender.Hex(),
			To:          tx.To().Hex(),
			Amount:      ToMinorUnits(tx.Value(), w.decimals),
			TxHash:      tx.Hash().Hex(),
			BlockNumber: block.NumberU64(),
		}
		if err := w.RecordTransfer(ctx, transfer); err != nil {
			w.logger.Errorw("Failed to record transfer", "tx", transfer.TxHash, "error", err)
		}
	}
}

// RecordTransfer stores transfer in the payment ledger if it pays a payment address.
func (w *Watcher) RecordTransfer(ctx context.Context, transfer *Transfer) error {
	to := validation.NormalizeAddress(transfer.To)
	isPayment, err := w.ledger.IsPaymentAddress(ctx, to)
	if err != nil {
		return fmt.Errorf("failed to check payment address: %w", err)
	}
	if !isPayment {
		return nil
	}
	w.logger.Infow("Payment detected", "address", to, "from", transfer.From, "amount", transfer.Amount, "tx", transfer.TxHash)
	return w.ledger.AddPayment(ctx, &models.Payment{
		Address:     to,
		Sender:      validation.NormalizeAddress(transfer.From),
		Amount:      transfer.Amount,
		TxHash:      transfer.TxHash,
		BlockNumber: transfer.BlockNumber,
		Timestamp:   w.now().UnixMilli(),
	})
}
