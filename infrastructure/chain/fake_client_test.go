package chain

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// fakeClient is an in-memory stand-in for an RPC node
type fakeClient struct {
	mu sync.Mutex

	chainID     *big.Int
	head        uint64
	estimateErr error

	// call answers eth_call by target address
	call func(msg ethereum.CallMsg) ([]byte, error)

	// mine builds the receipt for a sent transaction; returning nil leaves
	// the transaction pending forever
	mine func(tx *types.Transaction) *types.Receipt

	sent     []*types.Transaction
	txs      map[common.Hash]*types.Transaction
	receipts map[common.Hash]*types.Receipt
	logs     []types.Log
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		chainID:  big.NewInt(8453),
		txs:      make(map[common.Hash]*types.Transaction),
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

func successReceipt(tx *types.Transaction, logs ...*types.Log) *types.Receipt {
	for _, l := range logs {
		l.TxHash = tx.Hash()
	}
	return &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(100),
		GasUsed:     21000,
		Logs:        logs,
	}
}

func (f *fakeClient) addTransaction(tx *types.Transaction, receipt *types.Receipt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs[tx.Hash()] = tx
	if receipt != nil {
		f.receipts[tx.Hash()] = receipt
	}
}

func (f *fakeClient) sentTransactions() []*types.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*types.Transaction(nil), f.sent...)
}

func (f *fakeClient) ChainID(ctx context.Context) (*big.Int, error) {
	return f.chainID, nil
}

func (f *fakeClient) BlockNumber(ctx context.Context) (uint64, error) {
	return f.head, nil
}

func (f *fakeClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if f.call == nil {
		return nil, ethereum.NotFound
	}
	return f.call(msg)
}

func (f *fakeClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return 100000, nil
}

func (f *fakeClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Log
	for _, l := range f.logs {
		if l.BlockNumber >= q.FromBlock.Uint64() && l.BlockNumber <= q.ToBlock.Uint64() {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeClient) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return nil, ethereum.NotFound
}

func (f *fakeClient) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[hash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	_, mined := f.receipts[hash]
	return tx, !mined, nil
}

func (f *fakeClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	receipt, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (f *fakeClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	f.sent = append(f.sent, tx)
	f.txs[tx.Hash()] = tx
	mine := f.mine
	f.mu.Unlock()

	if mine != nil {
		if receipt := mine(tx); receipt != nil {
			f.mu.Lock()
			f.receipts[tx.Hash()] = receipt
			f.mu.Unlock()
		}
	}
	return nil
}

func (f *fakeClient) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.sent)), nil
}
