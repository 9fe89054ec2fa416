package chain

import (
	"fmt"
	"math/big"

	"betmirror/domain/entities"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/core/types"
)

// LogKind identifies a decoded contract event
type LogKind string

const (
	LogBetCreated    LogKind = "bet_created"
	LogStatusChanged LogKind = "status_changed"
)

// Log is a contract event decoded into mirror terms
type Log struct {
	Kind            LogKind
	BetNumber       int64
	Status          entities.BetStatus
	Bet             *entities.Bet
	TransactionHash string
	BlockNumber     uint64
	Index           uint
}

// DecodeLog decodes a bet contract log. It returns nil for events the mirror
// does not track.
func (c *Contract) DecodeLog(l types.Log) (*Log, error) {
	if len(l.Topics) == 0 {
		return nil, nil
	}

	created := c.bets.Events[eventBetCreated]
	changed := c.bets.Events[eventBetStatusChanged]

	switch l.Topics[0] {
	case created.ID:
		if len(l.Topics) < 2 {
			return nil, fmt.Errorf("BetCreated log missing betNumber topic")
		}
		values, err := c.bets.Unpack(eventBetCreated, l.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to unpack BetCreated: %w", err)
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("BetCreated carried no bet tuple")
		}
		betNumber := new(big.Int).SetBytes(l.Topics[1].Bytes()).Int64()
		raw := *abi.ConvertType(values[0], new(contractBet)).(*contractBet)
		return &Log{
			Kind:            LogBetCreated,
			BetNumber:       betNumber,
			Status:          entities.BetStatus(raw.Status),
			Bet:             raw.toEntity(betNumber, l.TxHash.Hex()),
			TransactionHash: l.TxHash.Hex(),
			BlockNumber:     l.BlockNumber,
			Index:           l.Index,
		}, nil

	case changed.ID:
		if len(l.Topics) < 2 {
			return nil, fmt.Errorf("BetStatusChanged log missing betNumber topic")
		}
		values, err := c.bets.Unpack(eventBetStatusChanged, l.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to unpack BetStatusChanged: %w", err)
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("BetStatusChanged carried no status")
		}
		status, ok := values[0].(uint8)
		if !ok {
			return nil, fmt.Errorf("unexpected BetStatusChanged status type %T", values[0])
		}
		return &Log{
			Kind:            LogStatusChanged,
			BetNumber:       new(big.Int).SetBytes(l.Topics[1].Bytes()).Int64(),
			Status:          entities.BetStatus(status),
			TransactionHash: l.TxHash.Hex(),
			BlockNumber:     l.BlockNumber,
			Index:           l.Index,
		}, nil
	}

	return nil, nil
}
