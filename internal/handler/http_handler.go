// Package handler 提供托管钱包的运营 HTTP 接口
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/heliox-exchange/heliox-custody/internal/model"
	"github.com/heliox-exchange/heliox-custody/internal/repository"
	"github.com/heliox-exchange/heliox-custody/internal/scheduler"
	"github.com/heliox-exchange/heliox-custody/pkg/logger"
)

// AccountOpener 开户能力
type AccountOpener interface {
	GetOrCreateWallet(ctx context.Context, userID, currencyID int64) (*model.MainWallet, *model.MainWalletAddress, error)
}

// BalanceReader 余额查询能力
type BalanceReader interface {
	DisplayBalance(ctx context.Context, walletID int64) (decimal.Decimal, error)
}

// JobController 调度器控制能力
type JobController interface {
	TriggerJob(jobName string) error
	ListJobStatus() ([]*scheduler.JobStatus, error)
}

// Handler 运营 HTTP 处理器
type Handler struct {
	accounts AccountOpener
	balances BalanceReader
	jobs     JobController
}

// NewHandler 创建处理器
func NewHandler(accounts AccountOpener, balances BalanceReader, jobs JobController) *Handler {
	return &Handler{
		accounts: accounts,
		balances: balances,
		jobs:     jobs,
	}
}

// Register 注册路由
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /wallets", h.createWallet)
	mux.HandleFunc("GET /wallets/{id}/balance", h.getBalance)
	mux.HandleFunc("GET /jobs", h.listJobs)
	mux.HandleFunc("POST /jobs/{name}/trigger", h.triggerJob)
}

// createWalletRequest 开户请求
type createWalletRequest struct {
	UserID     int64 `json:"user_id"`
	CurrencyID int64 `json:"currency_id"`
}

// walletResponse 钱包响应
type walletResponse struct {
	WalletID   int64  `json:"wallet_id"`
	UserID     int64  `json:"user_id"`
	CurrencyID int64  `json:"currency_id"`
	Address    string `json:"address"`
}

func (h *Handler) createWallet(w http.ResponseWriter, r *http.Request) {
	var req createWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID <= 0 || req.CurrencyID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id and currency_id are required")
		return
	}

	wallet, addr, err := h.accounts.GetOrCreateWallet(r.Context(), req.UserID, req.CurrencyID)
	if err != nil {
		if errors.Is(err, repository.ErrCurrencyNotFound) {
			writeError(w, http.StatusNotFound, "currency not found")
			return
		}
		logger.Error("failed to create wallet",
			zap.Int64("user_id", req.UserID),
			zap.Int64("currency_id", req.CurrencyID),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, &walletResponse{
		WalletID:   wallet.ID,
		UserID:     wallet.UserID,
		CurrencyID: wallet.CurrencyID,
		Address:    addr.Address,
	})
}

// balanceResponse 余额响应
type balanceResponse struct {
	WalletID int64  `json:"wallet_id"`
	Balance  string `json:"balance"`
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	walletID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || walletID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid wallet id")
		return
	}

	balance, err := h.balances.DisplayBalance(r.Context(), walletID)
	if err != nil {
		if errors.Is(err, repository.ErrMainWalletNotFound) {
			writeError(w, http.StatusNotFound, "wallet not found")
			return
		}
		logger.Error("failed to get balance",
			zap.Int64("wallet_id", walletID),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, &balanceResponse{
		WalletID: walletID,
		Balance:  balance.String(),
	})
}

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.jobs.ListJobStatus()
	if err != nil {
		logger.Error("failed to list job status", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (h *Handler) triggerJob(w http.ResponseWriter, r *http.Request) {
	jobName := r.PathValue("name")
	if err := h.jobs.TriggerJob(jobName); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job": jobName, "status": "triggered"})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
