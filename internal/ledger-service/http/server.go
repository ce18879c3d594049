package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/crypto-casino-poc/internal/deposit-registry/registry"
	"github.com/radieske/crypto-casino-poc/internal/ledger-service/dto"
	"github.com/radieske/crypto-casino-poc/internal/ledger-service/repo"
)

// Repo define a interface de operações de ledger usadas pelo handler HTTP
type Repo interface {
	GetOrCreateAccount(ctx context.Context, userID string) (repo.Account, error)
	DebitForWager(ctx context.Context, userID string, amount decimal.Decimal) (repo.Account, error)
	ApplyWagerOutcome(ctx context.Context, userID string, amount, multiplier decimal.Decimal) (repo.Account, error)
	ResetAccount(ctx context.Context, userID string) error
	AccrueRakeback(ctx context.Context, userID string, wager decimal.Decimal) error
	GetRakeback(ctx context.Context, userID string) (repo.RakebackAccount, error)
	SubmitWithdrawal(ctx context.Context, userID string, amount decimal.Decimal, destination string) (repo.WithdrawalRequest, error)
	ConfirmWithdrawal(ctx context.Context, position int) (repo.WithdrawalRequest, error)
	CancelWithdrawal(ctx context.Context, userID string) (repo.WithdrawalRequest, error)
	ListWithdrawals(ctx context.Context) ([]repo.WithdrawalRequest, error)
	PurgeWithdrawals(ctx context.Context, userID string) (int64, error)
}

// Registry aloca endereços de depósito (idempotente por usuário)
type Registry interface {
	Assign(ctx context.Context, userID string) (string, error)
}

// Server expõe os endpoints HTTP do ledger: contas, apostas, rakeback,
// fila de saques e atribuição de endereço de depósito
type Server struct {
	log      *zap.Logger
	repo     Repo
	registry Registry
}

// NewServer instancia o servidor HTTP do ledger
func NewServer(log *zap.Logger, r Repo, reg Registry) *Server {
	return &Server{log: log, repo: r, registry: reg}
}

// Router retorna o roteador HTTP com as rotas da API do ledger
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/v1/accounts/{userID}", s.getAccount)
	r.Post("/v1/accounts/{userID}/reset", s.resetAccount)
	r.Post("/v1/wagers", s.placeWager)
	r.Post("/v1/wagers/outcome", s.wagerOutcome)
	r.Get("/v1/rakeback/{userID}", s.getRakeback)
	r.Post("/v1/withdrawals", s.submitWithdrawal)
	r.Get("/v1/withdrawals", s.listWithdrawals)
	r.Post("/v1/withdrawals/confirm", s.confirmWithdrawal)
	r.Post("/v1/withdrawals/cancel", s.cancelWithdrawal)
	r.Post("/v1/withdrawals/purge", s.purgeWithdrawals)
	r.Post("/v1/deposit-addresses", s.assignDepositAddress)
	return r
}

// getAccount retorna (ou cria) a conta do usuário
func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	acc, err := s.repo.GetOrCreateAccount(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, accountResponse(acc))
}

// resetAccount zera os quatro campos da conta (override administrativo).
// A fila de saques NÃO é tocada aqui — use /v1/withdrawals/purge.
func (s *Server) resetAccount(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := s.repo.ResetAccount(r.Context(), userID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	acc, err := s.repo.GetOrCreateAccount(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, accountResponse(acc))
}

// placeWager debita a aposta e acumula rakeback.
// O módulo de jogo (fora deste serviço) decide o multiplicador do resultado.
func (s *Server) placeWager(w http.ResponseWriter, r *http.Request) {
	var req dto.WagerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Amount.LessThanOrEqual(decimal.Zero) {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	acc, err := s.repo.DebitForWager(r.Context(), req.UserID, req.Amount)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	// Rakeback acumula depois do débito bem-sucedido, independente do resultado
	if err := s.repo.AccrueRakeback(r.Context(), req.UserID, req.Amount); err != nil {
		s.log.Warn("rakeback accrue failed", zap.String("userId", req.UserID), zap.Error(err))
	}
	writeJSON(w, accountResponse(acc))
}

// wagerOutcome aplica o resultado de uma aposta já debitada
func (s *Server) wagerOutcome(w http.ResponseWriter, r *http.Request) {
	var req dto.WagerOutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Amount.LessThanOrEqual(decimal.Zero) || req.Multiplier.IsNegative() {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	acc, err := s.repo.ApplyWagerOutcome(r.Context(), req.UserID, req.Amount, req.Multiplier)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, accountResponse(acc))
}

// getRakeback retorna o acumulado de rakeback (somente leitura/exibição)
func (s *Server) getRakeback(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	rb, err := s.repo.GetRakeback(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, dto.RakebackResponse{UserID: userID, TotalWagered: rb.TotalWagered, RakebackEarned: rb.RakebackEarned})
}

// submitWithdrawal valida o destino, debita o saldo e enfileira a solicitação
func (s *Server) submitWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req dto.WithdrawalSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Amount.LessThanOrEqual(decimal.Zero) {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	wr, err := s.repo.SubmitWithdrawal(r.Context(), req.UserID, req.Amount, req.Destination)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, withdrawalResponse(wr))
}

// listWithdrawals retorna o snapshot ordenado da fila
func (s *Server) listWithdrawals(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.repo.ListWithdrawals(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]dto.WithdrawalResponse, 0, len(reqs))
	for _, wr := range reqs {
		out = append(out, withdrawalResponse(wr))
	}
	writeJSON(w, out)
}

// confirmWithdrawal remove a solicitação na posição informada (operador).
// O caller transmite a transferência externa; nenhum saldo muda aqui.
func (s *Server) confirmWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req dto.WithdrawalConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	wr, err := s.repo.ConfirmWithdrawal(r.Context(), req.Position)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, withdrawalResponse(wr))
}

// cancelWithdrawal cancela a solicitação mais antiga do usuário e devolve o saldo
func (s *Server) cancelWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req dto.WithdrawalCancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	wr, err := s.repo.CancelWithdrawal(r.Context(), req.UserID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, withdrawalResponse(wr))
}

// purgeWithdrawals remove todas as solicitações do usuário sem estorno
// (companheiro explícito do reset de conta)
func (s *Server) purgeWithdrawals(w http.ResponseWriter, r *http.Request) {
	var req dto.WithdrawalPurgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	n, err := s.repo.PurgeWithdrawals(r.Context(), req.UserID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, dto.PurgeResponse{UserID: req.UserID, Removed: n})
}

// assignDepositAddress retorna o endereço de depósito do usuário,
// alocando um novo no indexador apenas na primeira chamada
func (s *Server) assignDepositAddress(w http.ResponseWriter, r *http.Request) {
	var req dto.DepositAddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	addr, err := s.registry.Assign(r.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, registry.ErrAllocationFailed) {
			http.Error(w, "address allocation failed", http.StatusBadGateway)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, dto.DepositAddressResponse{UserID: req.UserID, Address: addr})
}

// writeRepoError mapeia os erros de validação do repo para status HTTP
func writeRepoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repo.ErrInsufficientFunds):
		http.Error(w, "insufficient funds", http.StatusConflict)
	case errors.Is(err, repo.ErrInvalidAddress):
		http.Error(w, "invalid destination address", http.StatusBadRequest)
	case errors.Is(err, repo.ErrInvalidPosition):
		http.Error(w, "invalid queue position", http.StatusNotFound)
	case errors.Is(err, repo.ErrNoPendingWithdrawal):
		http.Error(w, "no pending withdrawal", http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func accountResponse(acc repo.Account) dto.AccountResponse {
	return dto.AccountResponse{
		UserID:         acc.UserID,
		Balance:        acc.Balance,
		TotalDeposited: acc.TotalDeposited,
		TotalWithdrawn: acc.TotalWithdrawn,
		TotalWagered:   acc.TotalWagered,
	}
}

func withdrawalResponse(wr repo.WithdrawalRequest) dto.WithdrawalResponse {
	return dto.WithdrawalResponse{
		Position:    wr.Position,
		ID:          wr.ID,
		UserID:      wr.UserID,
		Amount:      wr.Amount,
		Destination: wr.Destination,
		CreatedAt:   wr.CreatedAt,
	}
}

// writeJSON serializa e envia resposta JSON
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
