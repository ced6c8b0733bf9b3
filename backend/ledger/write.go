package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/system"
)

var errRetryable = errors.New("ledger unreachable")

// Record logs one alert and waits for its receipt. It never returns a Go
// error; failures are classified in the result and logged at warn.
func (c *Client) Record(ctx context.Context, sessionID string, detected bool) WriteResult {
	if !c.Enabled() {
		return WriteResult{Status: StatusDisabled, Error: c.DisabledReason(), Attempts: 0}
	}

	res := c.record(ctx, sessionID, detected)
	res.Attempts = 1
	if !res.OK() {
		system.Warn("Ledger write for %s failed (%s): %s", sessionID, res.Status, res.Error)
	}

	return res
}

func (c *Client) record(ctx context.Context, sessionID string, detected bool) WriteResult {
	data, err := c.abi.Pack("logAlert", sessionID, detected)
	if err != nil {
		return WriteResult{Status: StatusRejected, Error: fmt.Sprintf("failed to encode call: %v", err)}
	}

	tx, res := c.send(ctx, data)
	if tx == nil {
		return res
	}

	return c.waitReceipt(ctx, tx.Hash())
}

func (c *Client) send(ctx context.Context, data []byte) (*types.Transaction, WriteResult) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, WriteResult{Status: StatusConnectionFailed, Error: fmt.Sprintf("nonce lookup: %v", err)}
	}

	to := c.opts.Contract
	tx, err := types.SignTx(types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: c.opts.MaxPriorityFee,
		GasFeeCap: c.opts.MaxFee,
		Gas:       c.opts.GasLimit,
		To:        &to,
		Data:      data,
	}), c.signer, c.opts.Key)
	if err != nil {
		return nil, WriteResult{Status: StatusRejected, Error: fmt.Sprintf("signing: %v", err)}
	}

	// The node may have accepted the transaction even when the call failed,
	// so the hash is kept for a later receipt lookup.
	if err := c.backend.SendTransaction(ctx, tx); err != nil {
		return nil, WriteResult{Status: classifySendError(err), TxHash: tx.Hash().Hex(), Error: fmt.Sprintf("submit: %v", err)}
	}

	return tx, WriteResult{}
}

// classifySendError separates a node refusing the transaction from a node that
// could not be reached.
func classifySendError(err error) Status {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return StatusRejected
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusTimeout
	}

	return StatusConnectionFailed
}

func (c *Client) waitReceipt(ctx context.Context, hash common.Hash) WriteResult {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(c.opts.ReceiptPoll)
	defer ticker.Stop()

	var lastErr error
	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			return c.fromReceipt(receipt)
		case !errors.Is(err, ethereum.NotFound):
			lastErr = err
		}

		select {
		case <-ctx.Done():
			msg := fmt.Sprintf("no receipt within %s", c.opts.ReceiptTimeout)
			if lastErr != nil {
				msg += ": " + lastErr.Error()
			}

			return WriteResult{Status: StatusTimeout, TxHash: hash.Hex(), Error: msg}
		case <-ticker.C:
		}
	}
}

func (c *Client) fromReceipt(receipt *types.Receipt) WriteResult {
	hash := receipt.TxHash.Hex()
	if receipt.Status != types.ReceiptStatusSuccessful {
		return WriteResult{Status: StatusRejected, TxHash: hash, Error: "transaction reverted"}
	}

	c.invalidateReads()

	return WriteResult{Status: StatusOK, TxHash: hash}
}

// Receipt looks up a previously submitted transaction. A transaction the node
// does not know yet reports StatusPending.
func (c *Client) Receipt(ctx context.Context, txHash string) WriteResult {
	if !c.Enabled() {
		return WriteResult{Status: StatusDisabled, TxHash: txHash, Error: c.DisabledReason()}
	}

	receipt, err := c.backend.TransactionReceipt(ctx, common.HexToHash(txHash))
	switch {
	case errors.Is(err, ethereum.NotFound):
		return WriteResult{Status: StatusPending, TxHash: txHash}
	case err != nil:
		return WriteResult{Status: StatusConnectionFailed, TxHash: txHash, Error: err.Error()}
	}

	return c.fromReceipt(receipt)
}

// Pending is an in-flight asynchronous write.
type Pending struct {
	done   chan struct{}
	result WriteResult
}

// Done is closed once the write finished, successfully or not.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the write finishes or ctx is done. The bool is false when
// ctx expired first; the write keeps running in that case.
func (p *Pending) Wait(ctx context.Context) (WriteResult, bool) {
	select {
	case <-p.done:
		return p.result, true
	case <-ctx.Done():
		return WriteResult{Status: StatusPending}, false
	}
}

// Result blocks until the write finishes.
func (p *Pending) Result() WriteResult {
	<-p.done

	return p.result
}

// RecordAsync runs Record in the background, detached from ctx cancellation
// but bounded by the client's request timeout. ConnectionFailed outcomes are
// retried with exponential backoff; rejected and timed out writes are not.
func (c *Client) RecordAsync(ctx context.Context, sessionID string, detected bool) *Pending {
	p := &Pending{done: make(chan struct{})}

	if !c.Enabled() {
		p.result = WriteResult{Status: StatusDisabled, Error: c.DisabledReason()}
		close(p.done)

		return p
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.AsyncTimeout)

	go func() {
		defer close(p.done)
		defer cancel()

		p.result = c.recordWithRetry(ctx, sessionID, detected)
	}()

	return p
}

func (c *Client) recordWithRetry(ctx context.Context, sessionID string, detected bool) WriteResult {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.RetryInitial

	var (
		last     WriteResult
		attempts int
	)

	_, _ = backoff.Retry(ctx, func() (WriteResult, error) {
		attempts++
		last = c.record(ctx, sessionID, detected)
		// A signed transaction may already be on the node; resending it
		// under a new nonce would log the alert twice.
		if last.Status == StatusConnectionFailed && last.TxHash == "" {
			return last, errRetryable
		}

		return last, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.opts.RetryMaxTries))

	last.Attempts = attempts
	if !last.OK() {
		system.Warn("Ledger write for %s failed after %d attempt(s) (%s): %s", sessionID, attempts, last.Status, last.Error)
	}

	return last
}
