package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
)

// CursorName is the sync state key for the bet contract log listener
const CursorName = "bet_contract_logs"

// CursorStore persists the last processed block
type CursorStore interface {
	GetCursor(ctx context.Context, name string) (uint64, error)
	SetCursor(ctx context.Context, name string, block uint64) error
}

// LogHandler processes one decoded contract event. An error stops the batch
// so the cursor does not advance past it.
type LogHandler func(ctx context.Context, l *Log) error

// ListenerConfig configures a Listener
type ListenerConfig struct {
	StartBlock    uint64
	PollInterval  time.Duration
	BatchSize     uint64
	Confirmations uint64
}

// Listener tails the bet contract's logs and hands them to a handler so the
// mirror converges even when no client reports a transaction
type Listener struct {
	client   Client
	contract *Contract
	cursor   CursorStore
	handler  LogHandler
	cfg      ListenerConfig
}

// NewListener creates a log listener
func NewListener(client Client, contract *Contract, cursor CursorStore, handler LogHandler, cfg ListenerConfig) *Listener {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 2000
	}
	return &Listener{client: client, contract: contract, cursor: cursor, handler: handler, cfg: cfg}
}

// Run polls until ctx is cancelled
func (l *Listener) Run(ctx context.Context) error {
	log.WithFields(log.Fields{
		"contract":     l.contract.Address.Hex(),
		"pollInterval": l.cfg.PollInterval,
	}).Info("Starting bet contract log listener")

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := l.Poll(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("Bet contract log poll failed")
		}

		select {
		case <-ctx.Done():
			log.Info("Bet contract log listener stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Poll processes every confirmed block after the stored cursor
func (l *Listener) Poll(ctx context.Context) error {
	head, err := l.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to get block number: %w", err)
	}
	if head < l.cfg.Confirmations {
		return nil
	}
	safeHead := head - l.cfg.Confirmations

	last, err := l.cursor.GetCursor(ctx, CursorName)
	if err != nil {
		return fmt.Errorf("failed to load cursor: %w", err)
	}
	from := last + 1
	if last == 0 && l.cfg.StartBlock > 0 {
		from = l.cfg.StartBlock
	}

	topics := []common.Hash{
		l.contract.bets.Events[eventBetCreated].ID,
		l.contract.bets.Events[eventBetStatusChanged].ID,
	}

	for from <= safeHead {
		to := from + l.cfg.BatchSize - 1
		if to > safeHead {
			to = safeHead
		}

		logs, err := l.client.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: []common.Address{l.contract.Address},
			Topics:    [][]common.Hash{topics},
		})
		if err != nil {
			return fmt.Errorf("failed to filter logs %d-%d: %w", from, to, err)
		}

		for _, raw := range logs {
			decoded, err := l.contract.DecodeLog(raw)
			if err != nil {
				log.WithFields(log.Fields{
					"txHash": raw.TxHash.Hex(),
					"block":  raw.BlockNumber,
					"error":  err,
				}).Warn("Failed to decode contract log")
				continue
			}
			if decoded == nil {
				continue
			}
			if err := l.handler(ctx, decoded); err != nil {
				return fmt.Errorf("failed to handle %s for bet %d: %w", decoded.Kind, decoded.BetNumber, err)
			}
		}

		if err := l.cursor.SetCursor(ctx, CursorName, to); err != nil {
			return fmt.Errorf("failed to store cursor: %w", err)
		}
		log.WithFields(log.Fields{
			"from": from,
			"to":   to,
			"logs": len(logs),
		}).Debug("Processed bet contract logs")

		from = to + 1
	}
	return nil
}
