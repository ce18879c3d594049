package consumer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/crypto-casino-poc/internal/deposit-registry/registry"
	"github.com/radieske/crypto-casino-poc/pkg/contracts/events"
)

type fakeLedger struct {
	credited map[string]decimal.Decimal // tx_hash -> amount
	err      error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{credited: make(map[string]decimal.Decimal)}
}

func (f *fakeLedger) CreditDeposit(_ context.Context, _ string, amount decimal.Decimal, txHash, _ string, _ int64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.credited[txHash]; ok {
		return false, nil
	}
	f.credited[txHash] = amount
	return true, nil
}

type fakeResolver struct {
	owners map[string]string
}

func (f *fakeResolver) Resolve(_ context.Context, address string) (string, error) {
	if u, ok := f.owners[address]; ok {
		return u, nil
	}
	return "", registry.ErrNotFound
}

type fixedRate struct{ rate decimal.Decimal }

func (f fixedRate) Rate(context.Context) decimal.Decimal { return f.rate }

type fakeSweeper struct {
	calls int
	err   error
}

func (f *fakeSweeper) Forward(_ context.Context, _ string, _ int64) (string, error) {
	f.calls++
	return "sweep-tx", f.err
}

func newTestProcessor(ledger *fakeLedger, sweeper *fakeSweeper) *Processor {
	return &Processor{
		Log:      zap.NewNop(),
		Ledger:   ledger,
		Registry: &fakeResolver{owners: map[string]string{"addr-1": "u1"}},
		Rates:    fixedRate{rate: decimal.NewFromInt(100)},
		Sweep:    sweeper,
	}
}

func observed(txHash string, sats int64, confirmations int) *events.DepositObserved {
	return &events.DepositObserved{
		TxHash:        txHash,
		Address:       "addr-1",
		AmountSats:    sats,
		Confirmations: confirmations,
		Source:        "deposit-scanner-worker",
		ObservedAt:    time.Now().UTC(),
	}
}

func TestHandleCreditsAtCurrentRate(t *testing.T) {
	ledger := newFakeLedger()
	sweeper := &fakeSweeper{}
	p := newTestProcessor(ledger, sweeper)

	var credited int
	p.OnCredited = func() { credited++ }

	// 1 LTC (1e8 sats) a 100 por moeda = 100 unidades de conta
	require.NoError(t, p.handle(context.Background(), observed("tx-1", 100_000_000, 1)))

	require.Len(t, ledger.credited, 1)
	assert.True(t, ledger.credited["tx-1"].Equal(decimal.NewFromInt(100)),
		"got %s", ledger.credited["tx-1"])
	assert.Equal(t, 1, credited)
	assert.Equal(t, 1, sweeper.calls)
}

func TestHandleDeduplicatesAcrossPaths(t *testing.T) {
	ledger := newFakeLedger()
	p := newTestProcessor(ledger, &fakeSweeper{})

	var duplicates int
	p.OnDuplicate = func() { duplicates++ }

	ev := observed("tx-1", 50_000_000, 1)
	require.NoError(t, p.handle(context.Background(), ev))

	// Mesmo depósito chegando pelo webhook: nada muda no ledger
	dup := observed("tx-1", 50_000_000, 1)
	dup.Source = "deposit-webhook-service"
	require.NoError(t, p.handle(context.Background(), dup))

	assert.Len(t, ledger.credited, 1)
	assert.Equal(t, 1, duplicates)
}

func TestHandleIgnoresUnconfirmed(t *testing.T) {
	ledger := newFakeLedger()
	p := newTestProcessor(ledger, &fakeSweeper{})

	require.NoError(t, p.handle(context.Background(), observed("tx-1", 100_000_000, 0)))
	assert.Empty(t, ledger.credited)
}

func TestHandleIgnoresUnknownAddress(t *testing.T) {
	ledger := newFakeLedger()
	p := newTestProcessor(ledger, &fakeSweeper{})

	ev := observed("tx-1", 100_000_000, 1)
	ev.Address = "somebody-elses-address"
	require.NoError(t, p.handle(context.Background(), ev))
	assert.Empty(t, ledger.credited)
}

func TestHandleDropsMalformedEvent(t *testing.T) {
	ledger := newFakeLedger()
	p := newTestProcessor(ledger, &fakeSweeper{})

	require.NoError(t, p.handle(context.Background(), observed("", 100_000_000, 1)))
	require.NoError(t, p.handle(context.Background(), observed("tx-1", 0, 1)))
	assert.Empty(t, ledger.credited)
}

func TestSweepFailureDoesNotUndoCredit(t *testing.T) {
	ledger := newFakeLedger()
	sweeper := &fakeSweeper{err: errors.New("broadcast down")}
	p := newTestProcessor(ledger, sweeper)

	var phases []string
	p.OnError = func(phase string) { phases = append(phases, phase) }

	require.NoError(t, p.handle(context.Background(), observed("tx-1", 100_000_000, 1)))

	assert.Len(t, ledger.credited, 1)
	assert.Equal(t, []string{"sweep"}, phases)
}

func TestBroadcastNoticeOnCredit(t *testing.T) {
	ledger := newFakeLedger()
	p := newTestProcessor(ledger, &fakeSweeper{})

	var notices []events.DepositNotice
	p.Broadcast = func(_ context.Context, n events.DepositNotice) { notices = append(notices, n) }

	require.NoError(t, p.handle(context.Background(), observed("tx-1", 100_000_000, 1)))
	// Duplicata não gera nova notificação
	require.NoError(t, p.handle(context.Background(), observed("tx-1", 100_000_000, 1)))

	require.Len(t, notices, 1)
	assert.Equal(t, "u1", notices[0].UserID)
	assert.Equal(t, "CREDITED", notices[0].Status)
	assert.Equal(t, "tx-1", notices[0].TxHash)
}

func TestProcessWithRetryRecovers(t *testing.T) {
	ledger := newFakeLedger()
	ledger.err = errors.New("db timeout")
	p := newTestProcessor(ledger, &fakeSweeper{})

	go func() {
		time.Sleep(50 * time.Millisecond)
		ledger.err = nil
	}()

	err := p.processWithRetry(context.Background(), observed("tx-1", 100_000_000, 1))
	require.NoError(t, err)
	assert.Len(t, ledger.credited, 1)
}

func TestProcessWithRetryExhausts(t *testing.T) {
	ledger := newFakeLedger()
	ledger.err = errors.New("db down")
	p := newTestProcessor(ledger, &fakeSweeper{})

	err := p.processWithRetry(context.Background(), observed("tx-1", 100_000_000, 1))
	assert.Error(t, err)
	assert.Empty(t, ledger.credited)
}
