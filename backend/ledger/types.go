package ledger

import (
	"errors"
	"time"
)

// Status classifies the outcome of a ledger operation. Anything but StatusOK
// means the value carried alongside it is not authoritative.
type Status string

const (
	StatusOK               Status = "ok"
	StatusPending          Status = "pending"
	StatusConnectionFailed Status = "connection_failed"
	StatusRejected         Status = "rejected"
	StatusTimeout          Status = "timeout"
	StatusDisabled         Status = "disabled"
)

// TimeLayout renders alert timestamps on the dashboard.
const TimeLayout = "Jan 02, 2006 03:04 PM"

var (
	ErrDisabled    = errors.New("ledger disabled")
	ErrInvalidKey  = errors.New("invalid ledger private key")
	ErrBadContract = errors.New("invalid contract address")
	ErrWrongChain  = errors.New("chain id mismatch")
)

// Alert is one entry of the on-chain log.
type Alert struct {
	Index     uint64 `json:"index"`
	SessionID string `json:"session_id"`
	Detected  bool   `json:"detected"`
	Timestamp int64  `json:"timestamp"`
}

// Time returns the block time the alert was recorded at.
func (a Alert) Time() time.Time {
	return time.Unix(a.Timestamp, 0)
}

// Formatted renders the timestamp in local time.
func (a Alert) Formatted() string {
	return a.Time().Local().Format(TimeLayout)
}

// WriteResult is the outcome of Record. TxHash is set once the transaction was
// accepted by the node, including on Timeout and on a reverted receipt.
type WriteResult struct {
	Status   Status `json:"status"`
	TxHash   string `json:"tx_hash,omitempty"`
	Error    string `json:"error,omitempty"`
	Attempts int    `json:"attempts"`
}

// OK reports whether the alert is confirmed on chain.
func (r WriteResult) OK() bool {
	return r.Status == StatusOK
}

// CountResult carries the alert count. Count is 0 on any failure; Status tells
// an empty log apart from an unreachable one.
type CountResult struct {
	Status Status `json:"status"`
	Count  uint64 `json:"count"`
	Error  string `json:"error,omitempty"`
}

// AlertResult carries a single alert lookup.
type AlertResult struct {
	Status Status `json:"status"`
	Alert  Alert  `json:"alert"`
	Error  string `json:"error,omitempty"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
