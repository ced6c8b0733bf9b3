package ledger_test

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/ledger"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/ledger/ledgertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, chain *ledgertest.Chain) *ledger.Client {
	t.Helper()

	c, err := chain.Client(ledger.Options{
		ReceiptTimeout: 200 * time.Millisecond,
		ReceiptPoll:    5 * time.Millisecond,
		RetryMaxTries:  3,
		RetryInitial:   time.Millisecond,
		CacheTTL:       time.Minute,
	})
	require.NoError(t, err)

	return c
}

func TestRecordIncrementsCountWithoutDedup(t *testing.T) {
	chain := ledgertest.New(1337)
	c := newTestClient(t, chain)
	ctx := context.Background()

	before := c.Count(ctx)
	require.Equal(t, ledger.StatusOK, before.Status)
	assert.Zero(t, before.Count)

	first := c.Record(ctx, "SID_00001", true)
	require.True(t, first.OK(), first.Error)
	assert.NotEmpty(t, first.TxHash)
	assert.Equal(t, uint64(1), c.Count(ctx).Count)

	second := c.Record(ctx, "SID_00001", true)
	require.True(t, second.OK(), second.Error)
	assert.NotEqual(t, first.TxHash, second.TxHash)
	assert.Equal(t, uint64(2), c.Count(ctx).Count)
}

func TestRecentIsNewestFirstWithMonotonicTimestamps(t *testing.T) {
	chain := ledgertest.New(1337)
	c := newTestClient(t, chain)
	ctx := context.Background()

	for i := 1; i <= 7; i++ {
		require.True(t, c.Record(ctx, fmt.Sprintf("SID_%05d", i), i%2 == 0).OK())
	}

	count, alerts := c.Recent(ctx, 5)
	require.Equal(t, ledger.StatusOK, count.Status)
	assert.Equal(t, uint64(7), count.Count)
	require.Len(t, alerts, 5)

	for i, r := range alerts {
		require.Equal(t, ledger.StatusOK, r.Status)
		assert.Equal(t, uint64(6-i), r.Alert.Index)
		assert.Equal(t, fmt.Sprintf("SID_%05d", 7-i), r.Alert.SessionID)
		if i > 0 {
			assert.LessOrEqual(t, r.Alert.Timestamp, alerts[i-1].Alert.Timestamp)
		}
	}

	_, all := c.Recent(ctx, 50)
	assert.Len(t, all, 7)
}

func TestConcurrentRecordsKeepNonceOrder(t *testing.T) {
	chain := ledgertest.New(1337)
	c := newTestClient(t, chain)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]ledger.WriteResult, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Record(ctx, fmt.Sprintf("SID_%d", i), false)
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.True(t, r.OK(), r.Error)
	}
	assert.Equal(t, uint64(10), c.Count(ctx).Count)
}

func TestUnreachableNodeReportsConnectionFailed(t *testing.T) {
	chain := ledgertest.New(1337)
	chain.SetUnreachable(true)
	c := newTestClient(t, chain)
	ctx := context.Background()

	res := c.Record(ctx, "SID_00001", true)
	assert.Equal(t, ledger.StatusConnectionFailed, res.Status)
	assert.Empty(t, res.TxHash)
	assert.NotEmpty(t, res.Error)

	count := c.Count(ctx)
	assert.Equal(t, ledger.StatusConnectionFailed, count.Status)
	assert.Zero(t, count.Count)

	assert.Error(t, c.Ping(ctx))
}

func TestRevertedReceiptIsRejected(t *testing.T) {
	chain := ledgertest.New(1337)
	chain.SetRevert(true)
	c := newTestClient(t, chain)
	ctx := context.Background()

	res := c.Record(ctx, "SID_00001", true)
	assert.Equal(t, ledger.StatusRejected, res.Status)
	assert.NotEmpty(t, res.TxHash)
	assert.Zero(t, c.Count(ctx).Count)
}

func TestMissingReceiptTimesOut(t *testing.T) {
	chain := ledgertest.New(1337)
	chain.SetNoMine(true)
	c := newTestClient(t, chain)
	ctx := context.Background()

	res := c.Record(ctx, "SID_00001", false)
	assert.Equal(t, ledger.StatusTimeout, res.Status)
	require.NotEmpty(t, res.TxHash)

	assert.Equal(t, ledger.StatusPending, c.Receipt(ctx, res.TxHash).Status)
}

func TestReceiptLookupAfterMining(t *testing.T) {
	chain := ledgertest.New(1337)
	c := newTestClient(t, chain)
	ctx := context.Background()

	res := c.Record(ctx, "SID_00001", true)
	require.True(t, res.OK())

	assert.Equal(t, ledger.StatusOK, c.Receipt(ctx, res.TxHash).Status)
}

func TestRecordAsyncRetriesConnectionFailures(t *testing.T) {
	chain := ledgertest.New(1337)
	chain.FailNonce(2)
	c := newTestClient(t, chain)

	p := c.RecordAsync(context.Background(), "SID_00042", true)
	res := p.Result()

	assert.True(t, res.OK(), res.Error)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, uint64(1), c.Count(context.Background()).Count)
}

func TestRecordAsyncGivesUpAfterMaxTries(t *testing.T) {
	chain := ledgertest.New(1337)
	chain.SetUnreachable(true)
	c := newTestClient(t, chain)

	res := c.RecordAsync(context.Background(), "SID_00042", true).Result()
	assert.Equal(t, ledger.StatusConnectionFailed, res.Status)
	assert.Equal(t, 3, res.Attempts)
}

func TestRecordAsyncDoesNotRetryRejection(t *testing.T) {
	chain := ledgertest.New(1337)
	chain.SetRevert(true)
	c := newTestClient(t, chain)

	res := c.RecordAsync(context.Background(), "SID_00042", true).Result()
	assert.Equal(t, ledger.StatusRejected, res.Status)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, chain.Sent())
}

func TestPendingWaitHonorsContext(t *testing.T) {
	chain := ledgertest.New(1337)
	chain.SetNoMine(true)
	c := newTestClient(t, chain)

	p := c.RecordAsync(context.Background(), "SID_00042", true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	res, finished := p.Wait(ctx)
	assert.False(t, finished)
	assert.Equal(t, ledger.StatusPending, res.Status)

	<-p.Done()
	assert.Equal(t, ledger.StatusTimeout, p.Result().Status)
}

func TestRecordAsyncSurvivesCallerCancellation(t *testing.T) {
	chain := ledgertest.New(1337)
	c := newTestClient(t, chain)

	ctx, cancel := context.WithCancel(context.Background())
	p := c.RecordAsync(ctx, "SID_00042", true)
	cancel()

	assert.True(t, p.Result().OK())
}

func TestGetOutOfRangeIsRejected(t *testing.T) {
	c := newTestClient(t, ledgertest.New(1337))

	res := c.Get(context.Background(), 3)
	assert.Equal(t, ledger.StatusRejected, res.Status)
	assert.Empty(t, res.Alert.SessionID)
}

func TestPing(t *testing.T) {
	assert.NoError(t, newTestClient(t, ledgertest.New(1337)).Ping(context.Background()))

	c, err := ledgertest.New(5).Client(ledger.Options{ChainID: 1337})
	require.NoError(t, err)
	assert.ErrorIs(t, c.Ping(context.Background()), ledger.ErrWrongChain)
}

func TestDisabledClient(t *testing.T) {
	c := ledger.Disabled("no private key")
	ctx := context.Background()

	assert.False(t, c.Enabled())
	assert.Equal(t, ledger.StatusDisabled, c.Record(ctx, "SID_1", true).Status)
	assert.Equal(t, ledger.StatusDisabled, c.Count(ctx).Status)
	assert.Equal(t, ledger.StatusDisabled, c.Get(ctx, 0).Status)
	assert.ErrorIs(t, c.Ping(ctx), ledger.ErrDisabled)

	count, alerts := c.Recent(ctx, 5)
	assert.Equal(t, ledger.StatusDisabled, count.Status)
	assert.Empty(t, alerts)

	p := c.RecordAsync(ctx, "SID_1", true)
	select {
	case <-p.Done():
	default:
		t.Fatal("disabled write should complete immediately")
	}
	assert.Equal(t, "no private key", p.Result().Error)
}

func TestParsePrivateKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	raw := hex.EncodeToString(crypto.FromECDSA(key))

	for _, in := range []string{raw, "0x" + raw, " 0x" + raw + "\n"} {
		parsed, err := ledger.ParsePrivateKey(in)
		require.NoError(t, err)
		assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), crypto.PubkeyToAddress(parsed.PublicKey))
	}

	_, err = ledger.ParsePrivateKey("")
	assert.ErrorIs(t, err, ledger.ErrInvalidKey)
	_, err = ledger.ParsePrivateKey("0xnothex")
	assert.ErrorIs(t, err, ledger.ErrInvalidKey)
}

func TestAlertFormatted(t *testing.T) {
	a := ledger.Alert{Timestamp: time.Date(2024, 3, 5, 14, 7, 0, 0, time.Local).Unix()}
	assert.Equal(t, "Mar 05, 2024 02:07 PM", a.Formatted())
}

func TestNewClientValidatesOptions(t *testing.T) {
	chain := ledgertest.New(1337)

	_, err := ledger.NewClient(chain, ledger.Options{ChainID: 1337, Contract: ledgertest.DefaultContract})
	assert.ErrorIs(t, err, ledger.ErrInvalidKey)

	key, _ := crypto.GenerateKey()
	_, err = ledger.NewClient(chain, ledger.Options{ChainID: 1337, Key: key})
	assert.ErrorIs(t, err, ledger.ErrBadContract)

	_, err = ledger.NewClient(chain, ledger.Options{ChainID: 1337, Key: key, Contract: ledgertest.DefaultContract, ABI: []byte(`[]`)})
	assert.Error(t, err)
}

// stallingReads holds the next contract read after the node answered it,
// until release is closed.
type stallingReads struct {
	*ledgertest.Chain
	stall   atomic.Bool
	reached chan struct{}
	release chan struct{}
}

func (s *stallingReads) CallContract(ctx context.Context, call ethereum.CallMsg, block *big.Int) ([]byte, error) {
	out, err := s.Chain.CallContract(ctx, call, block)
	if s.stall.CompareAndSwap(true, false) {
		close(s.reached)
		<-s.release
	}

	return out, err
}

func TestReadInFlightDuringWriteIsNotCached(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	backend := &stallingReads{
		Chain:   ledgertest.New(1337),
		reached: make(chan struct{}),
		release: make(chan struct{}),
	}
	backend.stall.Store(true)

	c, err := ledger.NewClient(backend, ledger.Options{
		Key:            key,
		Contract:       ledgertest.DefaultContract,
		ChainID:        1337,
		ReceiptTimeout: 200 * time.Millisecond,
		ReceiptPoll:    5 * time.Millisecond,
		CacheTTL:       time.Minute,
	})
	require.NoError(t, err)
	ctx := context.Background()

	stale := make(chan ledger.CountResult, 1)
	go func() { stale <- c.Count(ctx) }()

	<-backend.reached
	require.Equal(t, ledger.StatusOK, c.Record(ctx, "SID_00001", true).Status)
	close(backend.release)

	res := <-stale
	require.Equal(t, ledger.StatusOK, res.Status)
	assert.Equal(t, uint64(0), res.Count)

	assert.Equal(t, uint64(1), c.Count(ctx).Count)
}

func TestLostSubmitResponseKeepsTxHash(t *testing.T) {
	chain := ledgertest.New(1337)
	chain.SetAckError(context.DeadlineExceeded)
	c := newTestClient(t, chain)
	ctx := context.Background()

	res := c.Record(ctx, "SID_00001", true)
	assert.Equal(t, ledger.StatusTimeout, res.Status)
	require.NotEmpty(t, res.TxHash)
	assert.Len(t, chain.Alerts(), 1)

	chain.SetAckError(nil)
	assert.Equal(t, ledger.StatusOK, c.Receipt(ctx, res.TxHash).Status)
}

func TestRecordAsyncDoesNotResendSignedTransaction(t *testing.T) {
	chain := ledgertest.New(1337)
	c := newTestClient(t, chain)
	ctx := context.Background()

	chain.SetAckError(ledgertest.ErrRefused)
	res := c.RecordAsync(ctx, "SID_00001", true).Result()
	assert.Equal(t, ledger.StatusConnectionFailed, res.Status)
	assert.NotEmpty(t, res.TxHash)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, chain.Sent())
}
