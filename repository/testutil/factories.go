package testutil

import (
	"math/big"
	"time"

	"betmirror/domain/entities"

	"github.com/shopspring/decimal"
)

// Fixed party addresses used across repository and service tests
const (
	MakerAddress   = "0x1111111111111111111111111111111111111111"
	TakerAddress   = "0x2222222222222222222222222222222222222222"
	ArbiterAddress = "0x3333333333333333333333333333333333333333"
	TokenAddress   = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
)

// NewBet builds a freshly created bet with an assigned arbiter
func NewBet(betNumber int64, now time.Time) *entities.Bet {
	return &entities.Bet{
		BetNumber:       betNumber,
		MakerAddress:    MakerAddress,
		TakerAddress:    []string{TakerAddress},
		ArbiterAddress:  []string{ArbiterAddress},
		BetTokenAddress: TokenAddress,
		BetAmount:       big.NewInt(25_000_000),
		BetAgreement:    "ETH closes above 4k on Friday",
		EndTime:         now.Add(72 * time.Hour).Unix(),
		ProtocolFee:     decimal.NewFromInt(1),
		ArbiterFee:      decimal.NewFromInt(2),
		Status:          entities.BetStatusCreated,
		Timestamp:       now.Unix(),
		TransactionHash: "0xcreate",
	}
}
