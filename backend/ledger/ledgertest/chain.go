// Package ledgertest provides an in-memory chain that executes the AlertLog
// contract, for tests of code built on ledger.Client.
package ledgertest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/ledger"
)

// ErrRefused is what an unreachable chain returns.
var ErrRefused = errors.New("dial tcp 127.0.0.1:8545: connect: connection refused")

// DefaultContract is the address the fake contract lives at.
var DefaultContract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

// NodeError mimics a JSON-RPC error returned by a reachable node.
type NodeError struct {
	Code int
	Msg  string
}

func (e *NodeError) Error() string  { return e.Msg }
func (e *NodeError) ErrorCode() int { return e.Code }

// Chain implements ledger.Backend. Block time starts at a fixed instant and
// advances by a constant step per mined alert.
type Chain struct {
	mu       sync.Mutex
	abi      abi.ABI
	chainID  *big.Int
	alerts   []ledger.Alert
	nonces   map[common.Address]uint64
	receipts map[common.Hash]*types.Receipt
	clock    int64

	unreachable bool
	revert      bool
	noMine      bool
	ackErr      error
	flakyNonce  int
	sent        int
}

// New returns an empty chain with the given id.
func New(chainID int64) *Chain {
	parsed, err := abi.JSON(bytes.NewReader(ledger.ContractABI()))
	if err != nil {
		panic(err)
	}

	return &Chain{
		abi:      parsed,
		chainID:  big.NewInt(chainID),
		nonces:   make(map[common.Address]uint64),
		receipts: make(map[common.Hash]*types.Receipt),
		clock:    1700000000,
	}
}

// Client returns a ledger client bound to the chain with a fresh key. Zero
// option fields get fast test defaults.
func (c *Chain) Client(opts ledger.Options) (*ledger.Client, error) {
	if opts.Key == nil {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		opts.Key = key
	}
	if opts.Contract == (common.Address{}) {
		opts.Contract = DefaultContract
	}
	if opts.ChainID == 0 {
		opts.ChainID = c.chainID.Int64()
	}
	if opts.ReceiptPoll == 0 {
		opts.ReceiptPoll = 5 * time.Millisecond
	}

	return ledger.NewClient(c, opts)
}

// SetUnreachable makes every call fail like a refused connection.
func (c *Chain) SetUnreachable(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unreachable = v
}

// SetRevert makes mined transactions revert.
func (c *Chain) SetRevert(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revert = v
}

// SetNoMine accepts transactions but never produces receipts.
func (c *Chain) SetNoMine(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.noMine = v
}

// SetAckError makes SendTransaction accept transactions but return err to
// the caller, as when the response is lost in transit. nil restores normal
// replies.
func (c *Chain) SetAckError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ackErr = err
}

// FailNonce makes the next n nonce lookups fail.
func (c *Chain) FailNonce(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flakyNonce = n
}

// Sent counts accepted transactions.
func (c *Chain) Sent() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sent
}

// Alerts returns a copy of the contract storage.
func (c *Chain) Alerts() []ledger.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]ledger.Alert(nil), c.alerts...)
}

func (c *Chain) ChainID(context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unreachable {
		return nil, ErrRefused
	}

	return new(big.Int).Set(c.chainID), nil
}

func (c *Chain) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unreachable {
		return 0, ErrRefused
	}
	if c.flakyNonce > 0 {
		c.flakyNonce--
		return 0, ErrRefused
	}

	return c.nonces[account], nil
}

func (c *Chain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.accept(tx); err != nil {
		return err
	}

	return c.ackErr
}

func (c *Chain) accept(tx *types.Transaction) error {
	if c.unreachable {
		return ErrRefused
	}

	from, err := types.Sender(types.LatestSignerForChainID(c.chainID), tx)
	if err != nil {
		return &NodeError{Code: -32000, Msg: "invalid sender: " + err.Error()}
	}
	if tx.Nonce() != c.nonces[from] {
		return &NodeError{Code: -32000, Msg: fmt.Sprintf("nonce too low: have %d, want %d", tx.Nonce(), c.nonces[from])}
	}
	if tx.To() == nil || *tx.To() != DefaultContract {
		return &NodeError{Code: -32000, Msg: "unknown contract"}
	}
	c.nonces[from]++
	c.sent++

	if c.noMine {
		return nil
	}

	status := types.ReceiptStatusSuccessful
	if c.revert {
		status = types.ReceiptStatusFailed
	} else {
		method, err := c.abi.MethodById(tx.Data()[:4])
		if err != nil || method.Name != "logAlert" {
			return &NodeError{Code: -32000, Msg: "unknown method"}
		}
		args, err := method.Inputs.Unpack(tx.Data()[4:])
		if err != nil {
			return &NodeError{Code: -32000, Msg: err.Error()}
		}

		c.alerts = append(c.alerts, ledger.Alert{
			Index:     uint64(len(c.alerts)),
			SessionID: args[0].(string),
			Detected:  args[1].(bool),
			Timestamp: c.clock,
		})
		c.clock += 7
	}

	c.receipts[tx.Hash()] = &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(int64(len(c.receipts) + 1)),
	}

	return nil
}

func (c *Chain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unreachable {
		return nil, ErrRefused
	}

	r, ok := c.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}

	return r, nil
}

func (c *Chain) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unreachable {
		return nil, ErrRefused
	}

	method, err := c.abi.MethodById(call.Data[:4])
	if err != nil {
		return nil, &NodeError{Code: -32000, Msg: "unknown method"}
	}

	switch method.Name {
	case "getAlertCount":
		return method.Outputs.Pack(big.NewInt(int64(len(c.alerts))))
	case "getAlert":
		args, err := method.Inputs.Unpack(call.Data[4:])
		if err != nil {
			return nil, err
		}
		idx := args[0].(*big.Int)
		if !idx.IsUint64() || idx.Uint64() >= uint64(len(c.alerts)) {
			return nil, &NodeError{Code: 3, Msg: "execution reverted: index out of range"}
		}
		a := c.alerts[idx.Uint64()]

		return method.Outputs.Pack(a.SessionID, a.Detected, big.NewInt(a.Timestamp))
	}

	return nil, &NodeError{Code: -32000, Msg: "not a view method"}
}
