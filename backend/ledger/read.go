package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/patrickmn/go-cache"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/system"
)

const countKey = "count"

func (c *Client) readGeneration() uint64 {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	return c.generation
}

// cacheRead stores v unless a write was mined since gen was taken.
func (c *Client) cacheRead(gen uint64, key string, v any) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	if gen == c.generation {
		c.cache.Set(key, v, cache.DefaultExpiration)
	}
}

func (c *Client) invalidateReads() {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	c.generation++
	c.cache.Flush()
}

func (c *Client) call(ctx context.Context, method string, args ...any) ([]any, Status, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, StatusRejected, fmt.Errorf("failed to encode %s: %w", method, err)
	}

	to := c.opts.Contract
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: c.from, To: &to, Data: data}, nil)
	if err != nil {
		status := classifySendError(err)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			status = StatusTimeout
		}

		return nil, status, fmt.Errorf("%s: %w", method, err)
	}

	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, StatusRejected, fmt.Errorf("failed to decode %s: %w", method, err)
	}

	return values, StatusOK, nil
}

// Count returns the number of alerts on chain.
func (c *Client) Count(ctx context.Context) CountResult {
	if !c.Enabled() {
		return CountResult{Status: StatusDisabled, Error: c.DisabledReason()}
	}

	if v, ok := c.cache.Get(countKey); ok {
		return CountResult{Status: StatusOK, Count: v.(uint64)}
	}

	gen := c.readGeneration()
	values, status, err := c.call(ctx, "getAlertCount")
	if err != nil {
		system.Warn("Could not fetch alert count: %v", err)

		return CountResult{Status: status, Error: err.Error()}
	}

	n, ok := values[0].(*big.Int)
	if !ok || !n.IsUint64() {
		return CountResult{Status: StatusRejected, Error: fmt.Sprintf("unexpected count %v", values[0])}
	}

	c.cacheRead(gen, countKey, n.Uint64())

	return CountResult{Status: StatusOK, Count: n.Uint64()}
}

// Get returns the alert at index.
func (c *Client) Get(ctx context.Context, index uint64) AlertResult {
	if !c.Enabled() {
		return AlertResult{Status: StatusDisabled, Error: c.DisabledReason()}
	}

	key := fmt.Sprintf("alert:%d", index)
	if v, ok := c.cache.Get(key); ok {
		return AlertResult{Status: StatusOK, Alert: v.(Alert)}
	}

	gen := c.readGeneration()
	values, status, err := c.call(ctx, "getAlert", new(big.Int).SetUint64(index))
	if err != nil {
		system.Warn("Could not fetch alert %d: %v", index, err)

		return AlertResult{Status: status, Error: err.Error()}
	}

	sid, ok1 := values[0].(string)
	detected, ok2 := values[1].(bool)
	ts, ok3 := values[2].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ts.IsInt64() {
		return AlertResult{Status: StatusRejected, Error: fmt.Sprintf("unexpected alert tuple %v", values)}
	}

	alert := Alert{Index: index, SessionID: sid, Detected: detected, Timestamp: ts.Int64()}
	c.cacheRead(gen, key, alert)

	return AlertResult{Status: StatusOK, Alert: alert}
}

// Recent returns up to n alerts, newest first. Each entry carries its own
// status so one failed lookup does not hide the rest.
func (c *Client) Recent(ctx context.Context, n int) (CountResult, []AlertResult) {
	count := c.Count(ctx)
	if count.Status != StatusOK || count.Count == 0 || n <= 0 {
		return count, nil
	}

	limit := uint64(n)
	if limit > count.Count {
		limit = count.Count
	}

	alerts := make([]AlertResult, 0, limit)
	for i := uint64(0); i < limit; i++ {
		alerts = append(alerts, c.Get(ctx, count.Count-1-i))
	}

	return count, alerts
}

// Ping checks that the node is reachable and serves the configured chain.
func (c *Client) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return ErrDisabled
	}

	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain id: %w", err)
	}
	if id.Cmp(c.chainID) != 0 {
		return fmt.Errorf("%w: node reports %s, configured %s", ErrWrongChain, id, c.chainID)
	}

	return nil
}
