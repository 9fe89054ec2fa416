package chain

import (
	"fmt"
	"math/big"
	"strings"

	"betmirror/domain/entities"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const betTupleComponents = `[
	{"internalType":"address","name":"maker","type":"address"},
	{"internalType":"address[]","name":"taker","type":"address[]"},
	{"internalType":"address[]","name":"arbiter","type":"address[]"},
	{"internalType":"address","name":"betTokenAddress","type":"address"},
	{"internalType":"uint256","name":"betAmount","type":"uint256"},
	{"internalType":"uint256","name":"endTime","type":"uint256"},
	{"internalType":"uint256","name":"protocolFee","type":"uint256"},
	{"internalType":"uint256","name":"arbiterFee","type":"uint256"},
	{"internalType":"bool","name":"canSettleEarly","type":"bool"},
	{"internalType":"uint8","name":"status","type":"uint8"},
	{"internalType":"uint256","name":"timestamp","type":"uint256"},
	{"internalType":"string","name":"betAgreement","type":"string"}
]`

const termsInputs = `
	{"internalType":"address[]","name":"_taker","type":"address[]"},
	{"internalType":"address[]","name":"_arbiter","type":"address[]"},
	{"internalType":"address","name":"_betTokenAddress","type":"address"},
	{"internalType":"uint256","name":"_betAmount","type":"uint256"},
	{"internalType":"uint256","name":"_endTime","type":"uint256"},
	{"internalType":"uint256","name":"_arbiterFee","type":"uint256"},
	{"internalType":"bool","name":"_canSettleEarly","type":"bool"},
	{"internalType":"string","name":"_betAgreement","type":"string"}`

const betNumberInput = `{"internalType":"uint256","name":"_betNumber","type":"uint256"}`

func betNumberFunction(name string) string {
	return `{"inputs":[` + betNumberInput + `],"name":"` + name + `","outputs":[],"stateMutability":"nonpayable","type":"function"}`
}

// betManagerABI is the subset of the bet contract the mirror drives
var betManagerABI = `[
	{"inputs":[` + termsInputs + `],"name":"createBet","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"payable","type":"function"},
	{"inputs":[` + betNumberInput + `],"name":"acceptBet","outputs":[],"stateMutability":"payable","type":"function"},
	` + betNumberFunction("rejectBet") + `,
	` + betNumberFunction("makerCancelBet") + `,
	` + betNumberFunction("noArbiterCancelBet") + `,
	` + betNumberFunction("forfeitBet") + `,
	` + betNumberFunction("claimBet") + `,
	` + betNumberFunction("ArbiterAcceptRole") + `,
	` + betNumberFunction("ArbiterDeclineRole") + `,
	{"inputs":[` + betNumberInput + `,` + termsInputs + `],"name":"changeBetParameters","outputs":[],"stateMutability":"payable","type":"function"},
	{"inputs":[` + betNumberInput + `,{"internalType":"bool","name":"_winner","type":"bool"}],"name":"selectWinner","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[` + betNumberInput + `],"name":"getBet","outputs":[{"components":` + betTupleComponents + `,"internalType":"struct Bet","name":"","type":"tuple"}],"stateMutability":"view","type":"function"},
	{"anonymous":false,"inputs":[
		{"indexed":true,"internalType":"uint256","name":"betNumber","type":"uint256"},
		{"components":` + betTupleComponents + `,"indexed":false,"internalType":"struct Bet","name":"bet","type":"tuple"}
	],"name":"BetCreated","type":"event"},
	{"anonymous":false,"inputs":[
		{"indexed":true,"internalType":"uint256","name":"betNumber","type":"uint256"},
		{"indexed":false,"internalType":"uint8","name":"status","type":"uint8"}
	],"name":"BetStatusChanged","type":"event"}
]`

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

const (
	eventBetCreated       = "BetCreated"
	eventBetStatusChanged = "BetStatusChanged"
)

// contractFunctions maps each action to the contract function that performs it
var contractFunctions = map[entities.Action]string{
	entities.ActionCreate:          "createBet",
	entities.ActionAccept:          "acceptBet",
	entities.ActionReject:          "rejectBet",
	entities.ActionCancel:          "makerCancelBet",
	entities.ActionEdit:            "changeBetParameters",
	entities.ActionArbiterAccept:   "ArbiterAcceptRole",
	entities.ActionArbiterReject:   "ArbiterDeclineRole",
	entities.ActionForfeit:         "forfeitBet",
	entities.ActionSelectWinner:    "selectWinner",
	entities.ActionClaim:           "claimBet",
	entities.ActionNoArbiterCancel: "noArbiterCancelBet",
}

// FunctionFor returns the contract function name for an action
func FunctionFor(action entities.Action) (string, error) {
	name, ok := contractFunctions[action]
	if !ok {
		return "", fmt.Errorf("no contract function for action %q", action)
	}
	return name, nil
}

// ActionFor returns the action a contract function performs
func ActionFor(function string) (entities.Action, bool) {
	for action, name := range contractFunctions {
		if name == function {
			return action, true
		}
	}
	return "", false
}

// contractBet mirrors the Solidity Bet struct
type contractBet struct {
	Maker           common.Address
	Taker           []common.Address
	Arbiter         []common.Address
	BetTokenAddress common.Address
	BetAmount       *big.Int
	EndTime         *big.Int
	ProtocolFee     *big.Int
	ArbiterFee      *big.Int
	CanSettleEarly  bool
	Status          uint8
	Timestamp       *big.Int
	BetAgreement    string
}

func (b *contractBet) toEntity(betNumber int64, txHash string) *entities.Bet {
	return &entities.Bet{
		BetNumber:       betNumber,
		MakerAddress:    b.Maker.Hex(),
		TakerAddress:    hexAddresses(b.Taker),
		ArbiterAddress:  hexAddresses(b.Arbiter),
		BetTokenAddress: b.BetTokenAddress.Hex(),
		BetAmount:       new(big.Int).Set(orZero(b.BetAmount)),
		BetAgreement:    b.BetAgreement,
		EndTime:         orZero(b.EndTime).Int64(),
		CanSettleEarly:  b.CanSettleEarly,
		ProtocolFee:     decimal.NewFromBigInt(orZero(b.ProtocolFee), 0),
		ArbiterFee:      decimal.NewFromBigInt(orZero(b.ArbiterFee), 0),
		Status:          entities.BetStatus(b.Status),
		Timestamp:       orZero(b.Timestamp).Int64(),
		TransactionHash: txHash,
	}
}

// Contract bundles the parsed ABIs and the deployed address
type Contract struct {
	Address common.Address
	bets    abi.ABI
	erc20   abi.ABI
}

// NewContract parses the contract ABIs for the given address
func NewContract(address string) (*Contract, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid contract address: %q", address)
	}
	bets, err := abi.JSON(strings.NewReader(betManagerABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse bet contract ABI: %w", err)
	}
	erc20, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}
	return &Contract{Address: common.HexToAddress(address), bets: bets, erc20: erc20}, nil
}

// PackAction encodes the call data for a submission
func (c *Contract) PackAction(sub entities.Submission) ([]byte, error) {
	name, err := FunctionFor(sub.Action)
	if err != nil {
		return nil, err
	}
	betNumber := big.NewInt(sub.BetNumber)

	switch sub.Action {
	case entities.ActionCreate:
		if sub.Args.Terms == nil {
			return nil, fmt.Errorf("create requires terms")
		}
		return c.bets.Pack(name, termsArgs(*sub.Args.Terms)...)
	case entities.ActionEdit:
		if sub.Args.Terms == nil {
			return nil, fmt.Errorf("edit requires terms")
		}
		return c.bets.Pack(name, append([]interface{}{betNumber}, termsArgs(*sub.Args.Terms)...)...)
	case entities.ActionSelectWinner:
		if sub.Args.MakerWins == nil {
			return nil, fmt.Errorf("select winner requires a ruling")
		}
		return c.bets.Pack(name, betNumber, *sub.Args.MakerWins)
	default:
		return c.bets.Pack(name, betNumber)
	}
}

// decodedCall is a contract call recovered from transaction input
type decodedCall struct {
	Function  string
	BetNumber *big.Int
	MakerWins *bool

	// Terms are the terms a createBet or changeBetParameters call carries
	Terms *entities.Terms
}

// DecodeCall recovers the function, bet number and arguments from call data
func (c *Contract) DecodeCall(data []byte) (*decodedCall, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("call data too short")
	}
	method, err := c.bets.MethodById(data[:4])
	if err != nil {
		return nil, fmt.Errorf("failed to identify contract method: %w", err)
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s arguments: %w", method.Name, err)
	}

	call := &decodedCall{Function: method.Name}
	if method.Name != contractFunctions[entities.ActionCreate] && len(values) > 0 {
		if n, ok := values[0].(*big.Int); ok {
			call.BetNumber = n
		}
	}

	switch method.Name {
	case contractFunctions[entities.ActionSelectWinner]:
		if len(values) > 1 {
			if winner, ok := values[1].(bool); ok {
				call.MakerWins = &winner
			}
		}
	case contractFunctions[entities.ActionCreate]:
		if call.Terms, err = termsFromValues(values); err != nil {
			return nil, fmt.Errorf("failed to decode %s terms: %w", method.Name, err)
		}
	case contractFunctions[entities.ActionEdit]:
		if len(values) == 0 {
			return nil, fmt.Errorf("%s has no arguments", method.Name)
		}
		if call.Terms, err = termsFromValues(values[1:]); err != nil {
			return nil, fmt.Errorf("failed to decode %s terms: %w", method.Name, err)
		}
	}
	return call, nil
}

// termsFromValues is the inverse of termsArgs
func termsFromValues(values []interface{}) (*entities.Terms, error) {
	if len(values) != 8 {
		return nil, fmt.Errorf("expected 8 term arguments, got %d", len(values))
	}
	takers, okTakers := values[0].([]common.Address)
	arbiters, okArbiters := values[1].([]common.Address)
	token, okToken := values[2].(common.Address)
	amount, okAmount := values[3].(*big.Int)
	endTime, okEnd := values[4].(*big.Int)
	fee, okFee := values[5].(*big.Int)
	early, okEarly := values[6].(bool)
	agreement, okAgreement := values[7].(string)
	if !okTakers || !okArbiters || !okToken || !okAmount || !okEnd || !okFee || !okEarly || !okAgreement {
		return nil, fmt.Errorf("unexpected term argument types")
	}

	return &entities.Terms{
		TakerAddress:    hexAddresses(takers),
		ArbiterAddress:  hexAddresses(arbiters),
		BetTokenAddress: token.Hex(),
		BetAmount:       new(big.Int).Set(amount),
		BetAgreement:    agreement,
		EndTime:         endTime.Int64(),
		CanSettleEarly:  early,
		ArbiterFee:      decimal.NewFromBigInt(fee, 0),
	}, nil
}

func termsArgs(t entities.Terms) []interface{} {
	return []interface{}{
		toAddresses(t.TakerAddress),
		toAddresses(t.ArbiterAddress),
		common.HexToAddress(orZeroAddress(t.BetTokenAddress)),
		new(big.Int).Set(orZero(t.BetAmount)),
		big.NewInt(t.EndTime),
		t.ArbiterFee.BigInt(),
		t.CanSettleEarly,
		t.BetAgreement,
	}
}

func toAddresses(in []string) []common.Address {
	out := make([]common.Address, 0, len(in))
	for _, addr := range in {
		if entities.IsZeroAddress(addr) {
			continue
		}
		out = append(out, common.HexToAddress(addr))
	}
	return out
}

func hexAddresses(in []common.Address) []string {
	out := make([]string, 0, len(in))
	for _, addr := range in {
		out = append(out, addr.Hex())
	}
	return out
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func orZeroAddress(addr string) string {
	if entities.IsZeroAddress(addr) {
		return entities.ZeroAddress
	}
	return addr
}
