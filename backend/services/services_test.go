package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/ledger"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/ledger/ledgertest"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/ml"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.Prediction{}, &models.Admin{}))

	return db
}

func newPrediction(sid string, attack bool, status ledger.Status) *models.Prediction {
	label := ml.LabelNormal
	if attack {
		label = ml.LabelAttack
	}

	p := models.NewPrediction(sid, ml.DefaultSession(), ml.Prediction{Label: label, Attack: attack, Confidence: 0.8})
	p.LedgerStatus = string(status)

	return p
}

type capturedHook struct {
	mu     sync.Mutex
	bodies []string
}

func (c *capturedHook) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.bodies = append(c.bodies, string(body))
		c.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	return srv
}

func (c *capturedHook) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.bodies)
}

func TestWebhookNotifiesAttacksOnly(t *testing.T) {
	hook := &capturedHook{}
	w := NewWebhookService(hook.server(t).URL)
	ctx := context.Background()

	require.NoError(t, w.NotifyDetection(ctx, newPrediction("SID_1", false, ledger.StatusOK)))
	assert.Zero(t, hook.count())

	require.NoError(t, w.NotifyDetection(ctx, newPrediction("SID_2", true, ledger.StatusOK)))
	require.Equal(t, 1, hook.count())
	assert.Contains(t, hook.bodies[0], "SID_2")
	assert.Contains(t, hook.bodies[0], "Attack Detected")
}

func TestWebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	w := NewWebhookService(srv.URL)
	assert.Error(t, w.SendTestAlert(context.Background()))

	assert.Error(t, NewWebhookService("").SendTestAlert(context.Background()))
}

func TestComputeStats(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()

	old := newPrediction("SID_old", true, ledger.StatusOK)
	old.CreatedAt = now.Add(-3 * 24 * time.Hour)
	old.CountryCode = "US"

	rows := []*models.Prediction{
		old,
		newPrediction("SID_a", true, ledger.StatusOK),
		newPrediction("SID_b", false, ledger.StatusConnectionFailed),
		newPrediction("SID_c", true, ledger.StatusTimeout),
	}
	rows[1].CountryCode = "DE"
	rows[3].CountryCode = "DE"
	for _, p := range rows {
		require.NoError(t, db.Create(p).Error)
	}

	stats, err := ComputeStats(db, now)
	require.NoError(t, err)

	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(3), stats.Attacks)
	assert.Equal(t, int64(3), stats.TodayCount)
	assert.Equal(t, int64(2), stats.TodayAttacks)
	assert.Equal(t, int64(4), stats.WeekCount)
	assert.InDelta(t, 0.8, stats.AvgConfidence, 1e-9)
	assert.Equal(t, "DE", stats.TopCountry)
	assert.Equal(t, int64(2), stats.LedgerStatuses["ok"])
	assert.Equal(t, int64(1), stats.LedgerStatuses["timeout"])
}

func newLedger(t *testing.T, chain *ledgertest.Chain) *ledger.Client {
	t.Helper()

	c, err := chain.Client(ledger.Options{ReceiptTimeout: 100 * time.Millisecond, CacheTTL: time.Minute})
	require.NoError(t, err)

	return c
}

func TestReconcilerRetriesUnsentWrites(t *testing.T) {
	db := newTestDB(t)
	chain := ledgertest.New(1337)
	lc := newLedger(t, chain)

	p := newPrediction("SID_retry", true, ledger.StatusConnectionFailed)
	require.NoError(t, db.Create(p).Error)

	settled, err := NewReconciler(db, lc, time.Minute, 3, time.Minute).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, settled)

	var got models.Prediction
	require.NoError(t, db.First(&got, "id = ?", p.ID).Error)
	assert.Equal(t, string(ledger.StatusOK), got.LedgerStatus)
	assert.NotEmpty(t, got.TxHash)
	assert.Equal(t, 1, got.LedgerAttempts)

	alerts := chain.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "SID_retry", alerts[0].SessionID)
	assert.True(t, alerts[0].Detected)
}

func TestReconcilerLooksUpSubmittedTransactions(t *testing.T) {
	db := newTestDB(t)
	chain := ledgertest.New(1337)
	lc := newLedger(t, chain)

	res := lc.Record(context.Background(), "SID_mined", false)
	require.True(t, res.OK())

	p := newPrediction("SID_mined", false, ledger.StatusTimeout)
	p.TxHash = res.TxHash
	require.NoError(t, db.Create(p).Error)

	_, err := NewReconciler(db, lc, time.Minute, 3, time.Minute).RunOnce(context.Background())
	require.NoError(t, err)

	var got models.Prediction
	require.NoError(t, db.First(&got, "id = ?", p.ID).Error)
	assert.Equal(t, string(ledger.StatusOK), got.LedgerStatus)
	assert.Equal(t, 1, chain.Sent(), "a known transaction is never resubmitted")
}

func TestReconcilerSettlesLostSubmitWithoutResending(t *testing.T) {
	db := newTestDB(t)
	chain := ledgertest.New(1337)
	lc := newLedger(t, chain)

	chain.SetAckError(context.DeadlineExceeded)
	res := lc.Record(context.Background(), "SID_late", true)
	require.Equal(t, ledger.StatusTimeout, res.Status)
	require.NotEmpty(t, res.TxHash)
	chain.SetAckError(nil)

	p := newPrediction("SID_late", true, ledger.StatusPending)
	require.NoError(t, db.Create(p).Error)
	require.NoError(t, SaveLedgerResult(db, p.ID, res))

	settled, err := NewReconciler(db, lc, time.Minute, 3, time.Minute).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, settled)

	var got models.Prediction
	require.NoError(t, db.First(&got, "id = ?", p.ID).Error)
	assert.Equal(t, string(ledger.StatusOK), got.LedgerStatus)
	assert.Equal(t, res.TxHash, got.TxHash)
	assert.Equal(t, 1, chain.Sent())
	assert.Len(t, chain.Alerts(), 1)
}

func TestReconcilerStopsAfterMaxTries(t *testing.T) {
	db := newTestDB(t)
	chain := ledgertest.New(1337)
	chain.SetUnreachable(true)
	lc := newLedger(t, chain)

	p := newPrediction("SID_down", true, ledger.StatusConnectionFailed)
	require.NoError(t, db.Create(p).Error)

	r := NewReconciler(db, lc, time.Minute, 2, time.Minute)
	for i := 0; i < 4; i++ {
		_, err := r.RunOnce(context.Background())
		require.NoError(t, err)
	}

	var got models.Prediction
	require.NoError(t, db.First(&got, "id = ?", p.ID).Error)
	assert.Equal(t, string(ledger.StatusConnectionFailed), got.LedgerStatus)
	assert.Equal(t, 2, got.LedgerAttempts)
}

func TestReconcilerLeavesFreshPendingRows(t *testing.T) {
	db := newTestDB(t)
	chain := ledgertest.New(1337)
	lc := newLedger(t, chain)

	require.NoError(t, db.Create(newPrediction("SID_inflight", true, ledger.StatusPending)).Error)

	_, err := NewReconciler(db, lc, time.Minute, 3, time.Hour).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, chain.Sent())
}

func TestReconcilerIdleWhenLedgerDisabled(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(newPrediction("SID_x", true, ledger.StatusConnectionFailed)).Error)

	settled, err := NewReconciler(db, ledger.Disabled("off"), time.Minute, 3, time.Minute).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, settled)
}

type togglePinger struct {
	mu  sync.Mutex
	err error
}

func (p *togglePinger) set(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *togglePinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.err
}

func TestHealthMonitorAlertsOnTransitions(t *testing.T) {
	hook := &capturedHook{}
	pinger := &togglePinger{}
	h := NewHealthMonitor(pinger, NewWebhookService(hook.server(t).URL), time.Minute)
	ctx := context.Background()

	assert.True(t, h.Check(ctx).Up)
	assert.Zero(t, hook.count(), "first check only records state")

	pinger.set(errors.New("connection refused"))
	state := h.Check(ctx)
	assert.False(t, state.Up)
	assert.Equal(t, "connection refused", state.Error)
	assert.Equal(t, 1, hook.count())

	h.Check(ctx)
	assert.Equal(t, 1, hook.count())

	pinger.set(nil)
	h.Check(ctx)
	assert.Equal(t, 2, hook.count())
	assert.True(t, h.Status().Up)
}

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	f.records = append(f.records, rs...)
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}

	return results
}

func (f *fakeProducer) Close() {}

func TestKafkaPublisherEncodesEvent(t *testing.T) {
	prod := &fakeProducer{}
	k := &KafkaPublisher{client: prod, topic: "detections"}

	p := newPrediction("SID_k", true, ledger.StatusOK)
	p.ID = "abc"
	p.TxHash = "0x01"
	require.NoError(t, k.NotifyDetection(context.Background(), p))

	require.Len(t, prod.records, 1)
	r := prod.records[0]
	assert.Equal(t, "detections", r.Topic)
	assert.Equal(t, "SID_k", string(r.Key))

	var ev DetectionEvent
	require.NoError(t, json.Unmarshal(r.Value, &ev))
	assert.Equal(t, "abc", ev.ID)
	assert.True(t, ev.Attack)
	assert.Equal(t, "ok", ev.LedgerStatus)

	prod.err = errors.New("broker down")
	assert.Error(t, k.NotifyDetection(context.Background(), p))
}

type failingNotifier struct{ calls int }

func (f *failingNotifier) NotifyDetection(context.Context, *models.Prediction) error {
	f.calls++
	return errors.New("boom")
}

func TestNotifiersFanOut(t *testing.T) {
	a, b := &failingNotifier{}, &failingNotifier{}
	err := Notifiers{a, nil, b}.NotifyDetection(context.Background(), newPrediction("SID", true, ledger.StatusOK))

	assert.Error(t, err)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
}

func TestGeoIPFallback(t *testing.T) {
	g := NewGeoIPService("")
	defer g.Close()

	assert.Equal(t, "US", g.CountryCode("8.8.8.8"))
	assert.Equal(t, "", g.CountryCode("127.0.0.1"))
	assert.Equal(t, "", g.CountryCode("10.1.2.3"))
	assert.Equal(t, "", g.CountryCode("not-an-ip"))
}

func TestDailyReportSummarizesLastDay(t *testing.T) {
	db := newTestDB(t)
	hook := &capturedHook{}

	require.NoError(t, db.Create(newPrediction("SID_r1", true, ledger.StatusOK)).Error)
	require.NoError(t, db.Create(newPrediction("SID_r2", false, ledger.StatusTimeout)).Error)

	NewDailyReporter(db, NewWebhookService(hook.server(t).URL)).SendReport(context.Background())

	require.Equal(t, 1, hook.count())
	assert.Contains(t, hook.bodies[0], "Daily Detection Report")
	assert.Contains(t, hook.bodies[0], "2 sessions scored")
}
