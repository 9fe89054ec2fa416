package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"betmirror/domain/entities"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"
)

// ExecutorConfig configures an Executor
type ExecutorConfig struct {
	ChainID             *big.Int
	ConfirmationTimeout time.Duration

	// GasPriceMultiplier is applied to the suggested gas price, in percent
	GasPriceMultiplier int64

	// GasLimitMultiplier pads the gas estimate, in percent
	GasLimitMultiplier int64
}

// Executor submits bet actions to the contract and waits for their receipts
type Executor struct {
	client   Client
	contract *Contract
	cfg      ExecutorConfig
	key      *ecdsa.PrivateKey
	from     common.Address
}

// NewExecutor creates an executor. key may be nil for a read-only executor
// that only confirms client-signed transactions.
func NewExecutor(client Client, contract *Contract, key *ecdsa.PrivateKey, cfg ExecutorConfig) *Executor {
	if cfg.ConfirmationTimeout <= 0 {
		cfg.ConfirmationTimeout = 2 * time.Minute
	}
	if cfg.GasPriceMultiplier <= 0 {
		cfg.GasPriceMultiplier = 120
	}
	if cfg.GasLimitMultiplier <= 0 {
		cfg.GasLimitMultiplier = 120
	}

	e := &Executor{client: client, contract: contract, cfg: cfg, key: key}
	if key != nil {
		e.from = crypto.PubkeyToAddress(key.PublicKey)
	}
	return e
}

// ParsePrivateKey decodes a hex private key, with or without 0x prefix
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}

// SignerAddress returns the executor's signing address, empty when read-only
func (e *Executor) SignerAddress() string {
	if e.key == nil {
		return ""
	}
	return e.from.Hex()
}

// Submit broadcasts the action and blocks for its receipt. ERC20 deposits
// are preceded by an approval that must itself confirm first.
func (e *Executor) Submit(ctx context.Context, sub entities.Submission) (*entities.Receipt, error) {
	if e.key == nil {
		return nil, fmt.Errorf("%w: executor has no signing key", entities.ErrSignerRejected)
	}

	data, err := e.contract.PackAction(sub)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", sub.Action, err)
	}

	value := big.NewInt(0)
	if sub.Action.DepositsFunds() && sub.Amount != nil && sub.Amount.Sign() > 0 {
		if entities.IsZeroAddress(sub.Token) {
			value = new(big.Int).Set(sub.Amount)
		} else if err := e.ensureAllowance(ctx, common.HexToAddress(sub.Token), sub.Amount); err != nil {
			return nil, err
		}
	}

	tx, err := e.send(ctx, e.contract.Address, value, data)
	if err != nil {
		return nil, fmt.Errorf("failed to submit %s: %w", sub.Action, err)
	}

	log.WithFields(log.Fields{
		"action":    sub.Action,
		"betNumber": sub.BetNumber,
		"txHash":    tx.Hash().Hex(),
	}).Info("Submitted bet transaction")

	receipt, err := e.waitMined(ctx, tx)
	if err != nil {
		return nil, err
	}
	return e.toReceipt(receipt, e.from, sub, sub.Args.Terms)
}

// AwaitReceipt confirms a transaction signed by a client wallet
func (e *Executor) AwaitReceipt(ctx context.Context, txHash string, sub entities.Submission) (*entities.Receipt, error) {
	hash := common.HexToHash(txHash)

	tx, _, err := e.client.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("%w: transaction %s not found", entities.ErrTransactionMismatch, txHash)
		}
		return nil, fmt.Errorf("failed to fetch transaction %s: %w", txHash, err)
	}

	call, err := e.verifyCall(tx, sub)
	if err != nil {
		return nil, err
	}

	sender, err := types.Sender(types.LatestSignerForChainID(e.cfg.ChainID), tx)
	if err != nil {
		return nil, fmt.Errorf("failed to recover transaction sender: %w", err)
	}

	receipt, err := e.waitMined(ctx, tx)
	if err != nil {
		return nil, err
	}
	return e.toReceipt(receipt, sender, sub, call.Terms)
}

// InspectTransaction recovers the bet action and signer of a transaction
func (e *Executor) InspectTransaction(ctx context.Context, txHash string) (*entities.ChainCall, error) {
	tx, _, err := e.client.TransactionByHash(ctx, common.HexToHash(txHash))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction %s: %w", txHash, err)
	}
	if tx.To() == nil || *tx.To() != e.contract.Address {
		return nil, fmt.Errorf("%w: %s is not addressed to the bet contract", entities.ErrTransactionMismatch, txHash)
	}

	call, err := e.contract.DecodeCall(tx.Data())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrTransactionMismatch, err)
	}
	action, ok := ActionFor(call.Function)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a bet action", entities.ErrTransactionMismatch, call.Function)
	}

	sender, err := types.Sender(types.LatestSignerForChainID(e.cfg.ChainID), tx)
	if err != nil {
		return nil, fmt.Errorf("failed to recover transaction sender: %w", err)
	}

	out := &entities.ChainCall{Action: action, From: sender.Hex(), MakerWins: call.MakerWins}
	if call.BetNumber != nil {
		out.BetNumber = call.BetNumber.Int64()
	}
	return out, nil
}

// ReadBet calls the contract's getBet view
func (e *Executor) ReadBet(ctx context.Context, betNumber int64) (*entities.Bet, error) {
	data, err := e.contract.bets.Pack("getBet", big.NewInt(betNumber))
	if err != nil {
		return nil, fmt.Errorf("failed to pack getBet: %w", err)
	}

	out, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &e.contract.Address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call getBet: %w", err)
	}

	values, err := e.contract.bets.Unpack("getBet", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack getBet: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("getBet returned no values")
	}

	raw := *abi.ConvertType(values[0], new(contractBet)).(*contractBet)
	if raw.Maker == (common.Address{}) {
		return nil, nil
	}
	return raw.toEntity(betNumber, ""), nil
}

// ensureAllowance approves the contract to pull amount when the current
// allowance is short, and waits for the approval to confirm
func (e *Executor) ensureAllowance(ctx context.Context, token common.Address, amount *big.Int) error {
	data, err := e.contract.erc20.Pack("allowance", e.from, e.contract.Address)
	if err != nil {
		return fmt.Errorf("failed to pack allowance: %w", err)
	}
	out, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("failed to read allowance: %w", err)
	}
	values, err := e.contract.erc20.Unpack("allowance", out)
	if err != nil || len(values) == 0 {
		return fmt.Errorf("failed to unpack allowance: %v", err)
	}
	current, _ := values[0].(*big.Int)
	if current != nil && current.Cmp(amount) >= 0 {
		return nil
	}

	log.WithFields(log.Fields{
		"token":   token.Hex(),
		"amount":  amount.String(),
		"current": fmt.Sprint(current),
	}).Info("Allowance insufficient, submitting approval")

	approveData, err := e.contract.erc20.Pack("approve", e.contract.Address, amount)
	if err != nil {
		return fmt.Errorf("failed to pack approve: %w", err)
	}
	tx, err := e.send(ctx, token, big.NewInt(0), approveData)
	if err != nil {
		return fmt.Errorf("failed to submit approval: %w", err)
	}
	receipt, err := e.waitMined(ctx, tx)
	if err != nil {
		return fmt.Errorf("approval %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return fmt.Errorf("approval %s: %w", tx.Hash().Hex(), entities.ErrChainReverted)
	}
	return nil
}

// send builds, signs and broadcasts a legacy EIP-155 transaction
func (e *Executor) send(ctx context.Context, to common.Address, value *big.Int, data []byte) (*types.Transaction, error) {
	nonce, err := e.client.PendingNonceAt(ctx, e.from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas price: %w", err)
	}
	gasPrice = percentOf(gasPrice, e.cfg.GasPriceMultiplier)

	gas, err := e.client.EstimateGas(ctx, ethereum.CallMsg{From: e.from, To: &to, Value: value, Data: data})
	if err != nil {
		// Estimation executes the call, so a failure here is the revert the
		// transaction would hit on chain
		return nil, fmt.Errorf("%w: %v", entities.ErrChainReverted, err)
	}
	gas = gas * uint64(e.cfg.GasLimitMultiplier) / 100

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.NewEIP155Signer(e.cfg.ChainID), e.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrSignerRejected, err)
	}

	if err := e.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrSignerRejected, err)
	}
	return signed, nil
}

// waitMined blocks until the transaction has a receipt. The caller's
// cancellation is reported as abandonment, the executor's own deadline as an
// indeterminate timeout.
func (e *Executor) waitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, e.cfg.ConfirmationTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, e.client, tx)
	if err == nil {
		return receipt, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %s", entities.ErrSubmissionAbandoned, tx.Hash().Hex())
	}
	if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s after %s", entities.ErrConfirmationTimeout, tx.Hash().Hex(), e.cfg.ConfirmationTimeout)
	}
	return nil, fmt.Errorf("failed to wait for %s: %w", tx.Hash().Hex(), err)
}

// verifyCall checks that a client transaction calls the expected function
// on the expected bet, and returns the decoded call
func (e *Executor) verifyCall(tx *types.Transaction, sub entities.Submission) (*decodedCall, error) {
	if tx.To() == nil || *tx.To() != e.contract.Address {
		return nil, fmt.Errorf("%w: transaction is not addressed to the bet contract", entities.ErrTransactionMismatch)
	}

	call, err := e.contract.DecodeCall(tx.Data())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrTransactionMismatch, err)
	}

	want, err := FunctionFor(sub.Action)
	if err != nil {
		return nil, err
	}
	if call.Function != want {
		return nil, fmt.Errorf("%w: transaction calls %s, expected %s", entities.ErrTransactionMismatch, call.Function, want)
	}
	if sub.Action != entities.ActionCreate && (call.BetNumber == nil || call.BetNumber.Int64() != sub.BetNumber) {
		return nil, fmt.Errorf("%w: transaction targets a different bet", entities.ErrTransactionMismatch)
	}
	if sub.Action == entities.ActionSelectWinner && sub.Args.MakerWins != nil && call.MakerWins != nil && *call.MakerWins != *sub.Args.MakerWins {
		return nil, fmt.Errorf("%w: transaction ruling differs from request", entities.ErrTransactionMismatch)
	}
	return call, nil
}

// toReceipt checks the receipt status and extracts post-transition facts
// from the contract's logs, falling back to the predicted status. terms are
// the terms the transaction itself carried.
func (e *Executor) toReceipt(receipt *types.Receipt, from common.Address, sub entities.Submission, terms *entities.Terms) (*entities.Receipt, error) {
	hash := receipt.TxHash.Hex()
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, fmt.Errorf("%w: %s", entities.ErrChainReverted, hash)
	}

	out := &entities.Receipt{
		TransactionHash: hash,
		GasUsed:         receipt.GasUsed,
		From:            from.Hex(),
		Status:          sub.Predicted,
	}
	if sub.Action == entities.ActionCreate || sub.Action == entities.ActionEdit {
		out.Terms = terms
	}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}

	for _, l := range receipt.Logs {
		if l == nil || l.Address != e.contract.Address {
			continue
		}
		decoded, err := e.contract.DecodeLog(*l)
		if err != nil {
			log.WithError(err).WithField("txHash", hash).Warn("Skipping undecodable contract log")
			continue
		}
		if decoded == nil {
			continue
		}
		if sub.Action != entities.ActionCreate && decoded.BetNumber != sub.BetNumber {
			continue
		}

		switch decoded.Kind {
		case LogBetCreated:
			out.Bet = decoded.Bet
			out.Status = decoded.Bet.Status
			out.StatusFromEvent = true
		case LogStatusChanged:
			out.Status = decoded.Status
			out.StatusFromEvent = true
		}
	}

	if sub.Action == entities.ActionCreate && out.Bet == nil {
		return nil, fmt.Errorf("create receipt %s carries no BetCreated event", hash)
	}
	return out, nil
}

func percentOf(v *big.Int, percent int64) *big.Int {
	out := new(big.Int).Mul(v, big.NewInt(percent))
	return out.Div(out, big.NewInt(100))
}
