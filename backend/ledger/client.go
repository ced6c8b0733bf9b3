// Package ledger writes detection alerts to the AlertLog contract on an EVM
// chain and reads them back. Failures never surface as Go errors from the
// data calls; they are reported through explicit statuses.
package ledger

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	_ "embed"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"
	"github.com/patrickmn/go-cache"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/config"
)

//go:embed AlertLog.abi.json
var defaultABI []byte

// Backend is the slice of the JSON-RPC client the ledger needs.
// *ethclient.Client satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Options configures a Client.
type Options struct {
	ChainID        int64
	Contract       common.Address
	Key            *ecdsa.PrivateKey
	ABI            []byte
	GasLimit       uint64
	MaxFee         *big.Int
	MaxPriorityFee *big.Int
	ReceiptTimeout time.Duration
	ReceiptPoll    time.Duration
	AsyncTimeout   time.Duration
	RetryMaxTries  uint
	RetryInitial   time.Duration
	CacheTTL       time.Duration
}

func (o *Options) applyDefaults() {
	if o.GasLimit == 0 {
		o.GasLimit = 300000
	}
	if o.MaxFee == nil {
		o.MaxFee = new(big.Int).Mul(big.NewInt(60), big.NewInt(params.GWei))
	}
	if o.MaxPriorityFee == nil {
		o.MaxPriorityFee = new(big.Int).Mul(big.NewInt(2), big.NewInt(params.GWei))
	}
	if o.ReceiptTimeout <= 0 {
		o.ReceiptTimeout = 2 * time.Minute
	}
	if o.ReceiptPoll <= 0 {
		o.ReceiptPoll = time.Second
	}
	if o.AsyncTimeout <= 0 {
		o.AsyncTimeout = o.ReceiptTimeout + time.Minute
	}
	if o.RetryMaxTries == 0 {
		o.RetryMaxTries = 1
	}
	if o.RetryInitial <= 0 {
		o.RetryInitial = 500 * time.Millisecond
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 5 * time.Second
	}
}

// Client talks to the AlertLog contract. A Client built by Disabled answers
// every call with StatusDisabled.
type Client struct {
	backend Backend
	opts    Options
	abi     abi.ABI
	from    common.Address
	chainID *big.Int
	signer  types.Signer
	cache   *cache.Cache

	// sendMu serializes nonce lookup and submission.
	sendMu sync.Mutex

	// cacheMu guards generation against reads caching a value fetched
	// before the last mined write.
	cacheMu    sync.Mutex
	generation uint64

	disabledReason string
}

// NewClient builds a client over an existing backend.
func NewClient(backend Backend, opts Options) (*Client, error) {
	opts.applyDefaults()

	if opts.Key == nil {
		return nil, ErrInvalidKey
	}
	if opts.Contract == (common.Address{}) {
		return nil, ErrBadContract
	}

	abiJSON := opts.ABI
	if len(abiJSON) == 0 {
		abiJSON = defaultABI
	}
	parsed, err := abi.JSON(bytes.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract ABI: %w", err)
	}
	for _, name := range []string{"logAlert", "getAlertCount", "getAlert"} {
		if _, ok := parsed.Methods[name]; !ok {
			return nil, fmt.Errorf("contract ABI lacks %s", name)
		}
	}

	chainID := big.NewInt(opts.ChainID)

	return &Client{
		backend: backend,
		opts:    opts,
		abi:     parsed,
		from:    crypto.PubkeyToAddress(opts.Key.PublicKey),
		chainID: chainID,
		signer:  types.LatestSignerForChainID(chainID),
		cache:   cache.New(opts.CacheTTL, 2*opts.CacheTTL),
	}, nil
}

// Disabled returns a client that performs no I/O.
func Disabled(reason string) *Client {
	return &Client{disabledReason: reason}
}

// Dial connects to the configured RPC endpoint. Key and contract address come
// from the resolved configuration only.
func Dial(ctx context.Context, cfg config.Ledger) (*Client, error) {
	key, err := ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}

	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("%w: %q", ErrBadContract, cfg.ContractAddress)
	}

	var abiJSON []byte
	if cfg.ABIFile != "" {
		if abiJSON, err = os.ReadFile(cfg.ABIFile); err != nil {
			return nil, fmt.Errorf("failed to read ABI file: %w", err)
		}
	}

	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.RPCURL, err)
	}

	return NewClient(ec, Options{
		ChainID:        cfg.ChainID,
		Contract:       common.HexToAddress(cfg.ContractAddress),
		Key:            key,
		ABI:            abiJSON,
		GasLimit:       cfg.GasLimit,
		MaxFee:         gwei(cfg.MaxFeeGwei),
		MaxPriorityFee: gwei(cfg.MaxPriorityFeeGwei),
		ReceiptTimeout: cfg.ReceiptTimeout,
		ReceiptPoll:    cfg.ReceiptPoll,
		RetryMaxTries:  cfg.RetryMaxTries,
		RetryInitial:   cfg.RetryInitial,
		CacheTTL:       cfg.CacheTTL,
	})
}

// ParsePrivateKey accepts a hex key with or without the 0x prefix.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidKey)
	}

	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	return key, nil
}

func gwei(n int64) *big.Int {
	if n <= 0 {
		return nil
	}

	return new(big.Int).Mul(big.NewInt(n), big.NewInt(params.GWei))
}

// Enabled reports whether the client talks to a chain.
func (c *Client) Enabled() bool {
	return c != nil && c.backend != nil
}

// DisabledReason explains why the ledger is off; empty when enabled.
func (c *Client) DisabledReason() string {
	if c == nil {
		return ErrDisabled.Error()
	}

	return c.disabledReason
}

// Account is the sender address derived from the configured key.
func (c *Client) Account() common.Address {
	return c.from
}

// Contract is the AlertLog address.
func (c *Client) Contract() common.Address {
	return c.opts.Contract
}

// RequestTimeout bounds an async write including retries.
func (c *Client) RequestTimeout() time.Duration {
	return c.opts.AsyncTimeout
}

// ContractABI returns the embedded AlertLog ABI.
func ContractABI() []byte {
	return append([]byte(nil), defaultABI...)
}
