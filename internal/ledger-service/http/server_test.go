package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/crypto-casino-poc/internal/ledger-service/dto"
	"github.com/radieske/crypto-casino-poc/internal/ledger-service/repo"
)

// fakeRepo implementa o ledger em memória com a mesma semântica do Postgres
type fakeRepo struct {
	accounts map[string]*repo.Account
	queue    []repo.WithdrawalRequest
	rakeback map[string]*repo.RakebackAccount
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		accounts: make(map[string]*repo.Account),
		rakeback: make(map[string]*repo.RakebackAccount),
	}
}

func (f *fakeRepo) account(userID string) *repo.Account {
	acc, ok := f.accounts[userID]
	if !ok {
		acc = &repo.Account{
			UserID:         userID,
			Balance:        decimal.Zero,
			TotalDeposited: decimal.Zero,
			TotalWithdrawn: decimal.Zero,
			TotalWagered:   decimal.Zero,
		}
		f.accounts[userID] = acc
	}
	return acc
}

func (f *fakeRepo) GetOrCreateAccount(_ context.Context, userID string) (repo.Account, error) {
	return *f.account(userID), nil
}

func (f *fakeRepo) DebitForWager(_ context.Context, userID string, amount decimal.Decimal) (repo.Account, error) {
	acc := f.account(userID)
	if acc.Balance.LessThan(amount) {
		return repo.Account{}, repo.ErrInsufficientFunds
	}
	acc.Balance = acc.Balance.Sub(amount)
	acc.TotalWagered = acc.TotalWagered.Add(amount)
	return *acc, nil
}

func (f *fakeRepo) ApplyWagerOutcome(_ context.Context, userID string, amount, multiplier decimal.Decimal) (repo.Account, error) {
	acc := f.account(userID)
	acc.Balance = acc.Balance.Add(amount.Mul(multiplier))
	return *acc, nil
}

func (f *fakeRepo) ResetAccount(_ context.Context, userID string) error {
	acc := f.account(userID)
	acc.Balance = decimal.Zero
	acc.TotalDeposited = decimal.Zero
	acc.TotalWithdrawn = decimal.Zero
	acc.TotalWagered = decimal.Zero
	return nil
}

func (f *fakeRepo) AccrueRakeback(_ context.Context, userID string, wager decimal.Decimal) error {
	rb, ok := f.rakeback[userID]
	if !ok {
		rb = &repo.RakebackAccount{UserID: userID, TotalWagered: decimal.Zero, RakebackEarned: decimal.Zero}
		f.rakeback[userID] = rb
	}
	rb.TotalWagered = rb.TotalWagered.Add(wager)
	rb.RakebackEarned = rb.RakebackEarned.Add(wager.Mul(repo.RakebackRate))
	return nil
}

func (f *fakeRepo) GetRakeback(_ context.Context, userID string) (repo.RakebackAccount, error) {
	if rb, ok := f.rakeback[userID]; ok {
		return *rb, nil
	}
	return repo.RakebackAccount{UserID: userID, TotalWagered: decimal.Zero, RakebackEarned: decimal.Zero}, nil
}

func (f *fakeRepo) SubmitWithdrawal(_ context.Context, userID string, amount decimal.Decimal, destination string) (repo.WithdrawalRequest, error) {
	if !repo.ValidDestination(destination) {
		return repo.WithdrawalRequest{}, repo.ErrInvalidAddress
	}
	acc := f.account(userID)
	if acc.Balance.LessThan(amount) {
		return repo.WithdrawalRequest{}, repo.ErrInsufficientFunds
	}
	acc.Balance = acc.Balance.Sub(amount)
	acc.TotalWithdrawn = acc.TotalWithdrawn.Add(amount)
	req := repo.WithdrawalRequest{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      amount,
		Destination: destination,
	}
	f.queue = append(f.queue, req)
	req.Position = len(f.queue)
	return req, nil
}

func (f *fakeRepo) ConfirmWithdrawal(_ context.Context, position int) (repo.WithdrawalRequest, error) {
	if position < 1 || position > len(f.queue) {
		return repo.WithdrawalRequest{}, repo.ErrInvalidPosition
	}
	req := f.queue[position-1]
	req.Position = position
	f.queue = append(f.queue[:position-1], f.queue[position:]...)
	return req, nil
}

func (f *fakeRepo) CancelWithdrawal(_ context.Context, userID string) (repo.WithdrawalRequest, error) {
	for i, req := range f.queue {
		if req.UserID == userID {
			f.queue = append(f.queue[:i], f.queue[i+1:]...)
			acc := f.account(userID)
			acc.Balance = acc.Balance.Add(req.Amount)
			acc.TotalWithdrawn = acc.TotalWithdrawn.Sub(req.Amount)
			return req, nil
		}
	}
	return repo.WithdrawalRequest{}, repo.ErrNoPendingWithdrawal
}

func (f *fakeRepo) ListWithdrawals(_ context.Context) ([]repo.WithdrawalRequest, error) {
	out := make([]repo.WithdrawalRequest, len(f.queue))
	for i, req := range f.queue {
		req.Position = i + 1
		out[i] = req
	}
	return out, nil
}

func (f *fakeRepo) PurgeWithdrawals(_ context.Context, userID string) (int64, error) {
	var kept []repo.WithdrawalRequest
	var removed int64
	for _, req := range f.queue {
		if req.UserID == userID {
			removed++
			continue
		}
		kept = append(kept, req)
	}
	f.queue = kept
	return removed, nil
}

type fakeRegistry struct {
	addr string
	err  error
}

func (f *fakeRegistry) Assign(_ context.Context, _ string) (string, error) {
	return f.addr, f.err
}

func newTestServer(t *testing.T) (*fakeRepo, *httptest.Server) {
	t.Helper()
	fr := newFakeRepo()
	srv := NewServer(zap.NewNop(), fr, &fakeRegistry{addr: "ltc1qtestaddress000000000000000"})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return fr, ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	res, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return res
}

func decodeAccount(t *testing.T, res *http.Response) dto.AccountResponse {
	t.Helper()
	defer res.Body.Close()
	var out dto.AccountResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return out
}

const validDest = "LWalletDestination0000000000000000"

func TestWagerInsufficientFunds(t *testing.T) {
	fr, ts := newTestServer(t)
	fr.account("u1").Balance = decimal.NewFromInt(10)

	res := postJSON(t, ts.URL+"/v1/wagers", dto.WagerRequest{
		UserID: "u1", Amount: decimal.NewFromInt(15),
	})
	defer res.Body.Close()
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	// Saldo intacto depois da recusa
	acc, _ := fr.GetOrCreateAccount(context.Background(), "u1")
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(10)))
	assert.True(t, acc.TotalWagered.IsZero())
}

func TestWagerDebitsAndAccruesRakeback(t *testing.T) {
	fr, ts := newTestServer(t)
	fr.account("u1").Balance = decimal.NewFromInt(100)

	res := postJSON(t, ts.URL+"/v1/wagers", dto.WagerRequest{
		UserID: "u1", Amount: decimal.NewFromInt(40),
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	acc := decodeAccount(t, res)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(60)))
	assert.True(t, acc.TotalWagered.Equal(decimal.NewFromInt(40)))

	rb, err := fr.GetRakeback(context.Background(), "u1")
	require.NoError(t, err)
	// 0.5% de 40
	assert.True(t, rb.RakebackEarned.Equal(decimal.RequireFromString("0.2")))
}

func TestWagerOutcomePayout(t *testing.T) {
	fr, ts := newTestServer(t)
	fr.account("u1").Balance = decimal.NewFromInt(60)

	res := postJSON(t, ts.URL+"/v1/wagers/outcome", dto.WagerOutcomeRequest{
		UserID: "u1", Amount: decimal.NewFromInt(40), Multiplier: decimal.NewFromInt(2),
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	acc := decodeAccount(t, res)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(140)))
}

func TestWithdrawalInvalidDestination(t *testing.T) {
	fr, ts := newTestServer(t)
	fr.account("u1").Balance = decimal.NewFromInt(50)

	res := postJSON(t, ts.URL+"/v1/withdrawals", dto.WithdrawalSubmitRequest{
		UserID: "u1", Amount: decimal.NewFromInt(10), Destination: "bogus",
	})
	defer res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	acc, _ := fr.GetOrCreateAccount(context.Background(), "u1")
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(50)))
}

func TestWithdrawalSubmitCancelRoundTrip(t *testing.T) {
	fr, ts := newTestServer(t)
	fr.account("u1").Balance = decimal.NewFromInt(50)

	res := postJSON(t, ts.URL+"/v1/withdrawals", dto.WithdrawalSubmitRequest{
		UserID: "u1", Amount: decimal.NewFromInt(30), Destination: validDest,
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	var wr dto.WithdrawalResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&wr))
	res.Body.Close()
	assert.Equal(t, 1, wr.Position)

	// Submissão debita imediatamente
	acc, _ := fr.GetOrCreateAccount(context.Background(), "u1")
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(20)))
	assert.True(t, acc.TotalWithdrawn.Equal(decimal.NewFromInt(30)))

	res = postJSON(t, ts.URL+"/v1/withdrawals/cancel", dto.WithdrawalCancelRequest{UserID: "u1"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	res.Body.Close()

	// Cancelamento devolve tudo: round-trip sem perda
	acc, _ = fr.GetOrCreateAccount(context.Background(), "u1")
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(50)))
	assert.True(t, acc.TotalWithdrawn.IsZero())
	assert.Empty(t, fr.queue)
}

func TestWithdrawalConfirmDoesNotTouchBalance(t *testing.T) {
	fr, ts := newTestServer(t)
	fr.account("u1").Balance = decimal.NewFromInt(50)

	res := postJSON(t, ts.URL+"/v1/withdrawals", dto.WithdrawalSubmitRequest{
		UserID: "u1", Amount: decimal.NewFromInt(30), Destination: validDest,
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	res.Body.Close()

	res = postJSON(t, ts.URL+"/v1/withdrawals/confirm", dto.WithdrawalConfirmRequest{Position: 1})
	require.Equal(t, http.StatusOK, res.StatusCode)
	var wr dto.WithdrawalResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&wr))
	res.Body.Close()
	assert.Equal(t, "u1", wr.UserID)

	// Confirmação só remove da fila; o débito já tinha acontecido na submissão
	acc, _ := fr.GetOrCreateAccount(context.Background(), "u1")
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(20)))
	assert.True(t, acc.TotalWithdrawn.Equal(decimal.NewFromInt(30)))
	assert.Empty(t, fr.queue)
}

func TestWithdrawalConfirmInvalidPosition(t *testing.T) {
	_, ts := newTestServer(t)
	res := postJSON(t, ts.URL+"/v1/withdrawals/confirm", dto.WithdrawalConfirmRequest{Position: 5})
	defer res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestWithdrawalCancelEmptyQueue(t *testing.T) {
	_, ts := newTestServer(t)
	res := postJSON(t, ts.URL+"/v1/withdrawals/cancel", dto.WithdrawalCancelRequest{UserID: "ghost"})
	defer res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestQueuePositionsAreFIFO(t *testing.T) {
	fr, ts := newTestServer(t)
	fr.account("u1").Balance = decimal.NewFromInt(100)
	fr.account("u2").Balance = decimal.NewFromInt(100)

	for _, u := range []string{"u1", "u2", "u1"} {
		res := postJSON(t, ts.URL+"/v1/withdrawals", dto.WithdrawalSubmitRequest{
			UserID: u, Amount: decimal.NewFromInt(10), Destination: validDest,
		})
		require.Equal(t, http.StatusOK, res.StatusCode)
		res.Body.Close()
	}

	res, err := http.Get(ts.URL + "/v1/withdrawals")
	require.NoError(t, err)
	var list []dto.WithdrawalResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&list))
	res.Body.Close()

	require.Len(t, list, 3)
	assert.Equal(t, []string{"u1", "u2", "u1"}, []string{list[0].UserID, list[1].UserID, list[2].UserID})
	for i, wr := range list {
		assert.Equal(t, i+1, wr.Position)
	}
}

func TestResetZeroesAccountButKeepsQueue(t *testing.T) {
	fr, ts := newTestServer(t)
	fr.account("u1").Balance = decimal.NewFromInt(100)

	res := postJSON(t, ts.URL+"/v1/withdrawals", dto.WithdrawalSubmitRequest{
		UserID: "u1", Amount: decimal.NewFromInt(10), Destination: validDest,
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	res.Body.Close()

	res = postJSON(t, ts.URL+"/v1/accounts/u1/reset", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	acc := decodeAccount(t, res)
	assert.True(t, acc.Balance.IsZero())
	assert.True(t, acc.TotalDeposited.IsZero())
	assert.True(t, acc.TotalWithdrawn.IsZero())
	assert.True(t, acc.TotalWagered.IsZero())

	// Reset não mexe na fila; a limpeza é o purge, explícito
	assert.Len(t, fr.queue, 1)

	res = postJSON(t, ts.URL+"/v1/withdrawals/purge", dto.WithdrawalPurgeRequest{UserID: "u1"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	var pr dto.PurgeResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&pr))
	res.Body.Close()
	assert.Equal(t, int64(1), pr.Removed)
	assert.Empty(t, fr.queue)
}

func TestAssignDepositAddress(t *testing.T) {
	_, ts := newTestServer(t)
	res := postJSON(t, ts.URL+"/v1/deposit-addresses", dto.DepositAddressRequest{UserID: "u1"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	var out dto.DepositAddressResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	res.Body.Close()
	assert.Equal(t, "ltc1qtestaddress000000000000000", out.Address)
}

func TestGetAccountCreatesZeroed(t *testing.T) {
	_, ts := newTestServer(t)
	res, err := http.Get(ts.URL + "/v1/accounts/newbie")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	acc := decodeAccount(t, res)
	assert.Equal(t, "newbie", acc.UserID)
	assert.True(t, acc.Balance.IsZero())
}
