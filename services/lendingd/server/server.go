package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"dlend/core/types"
	"dlend/native/common"
	"dlend/native/lending"
	"dlend/native/oracle"
	"dlend/observability"
)

// Options bundles the collaborators the HTTP server exposes.
type Options struct {
	Engine    *lending.Engine
	Vault     *lending.MemoryVault
	Prices    *oracle.StaticSource
	Logger    *slog.Logger
	Tokens    []string
	RateLimit float64
	Burst     int
	// Faucet enables the dev-only wallet funding endpoint.
	Faucet bool
}

// Server exposes the lending engine over HTTP.
type Server struct {
	engine  *lending.Engine
	vault   *lending.MemoryVault
	prices  *oracle.StaticSource
	log     *slog.Logger
	metrics *observability.LendingMetrics
	faucet  bool
	router  http.Handler

	// Now is swapped out by tests to pin operation timestamps.
	Now func() time.Time
}

// New constructs a configured HTTP router with authentication and rate
// limiting applied to the API routes.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		engine:  opts.Engine,
		vault:   opts.Vault,
		prices:  opts.Prices,
		log:     logger,
		metrics: observability.Lending(),
		faucet:  opts.Faucet,
		Now:     time.Now,
	}

	if opts.RateLimit <= 0 {
		opts.RateLimit = 600
	}
	if opts.Burst <= 0 {
		opts.Burst = 60
	}
	limiter := newRateLimiter(opts.RateLimit, opts.Burst)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(limiter.middleware)
		r.Use(bearerAuth(opts.Tokens))

		r.Post("/pools", srv.handleCreatePool)
		r.Get("/pools", srv.handleListPools)
		r.Get("/pools/{poolID}", srv.handleGetPool)
		r.Post("/pools/{poolID}/deposit", srv.handleDeposit)
		r.Post("/pools/{poolID}/withdraw", srv.handleWithdraw)
		r.Post("/pools/{poolID}/borrow", srv.handleBorrow)
		r.Post("/pools/{poolID}/repay", srv.handleRepay)
		r.Post("/liquidate", srv.handleLiquidate)
		r.Get("/positions/{actor}", srv.handleGetPosition)
		r.Post("/positions/{actor}/reconcile", srv.handleReconcile)
		r.Get("/positions/{actor}/pools/{poolID}", srv.handleGetPoolPosition)
		r.Post("/prices", srv.handleSetPrice)
		if srv.faucet {
			r.Post("/faucet", srv.handleFaucet)
		}
	})

	srv.router = otelhttp.NewHandler(r, "lendingd")
	return srv
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	s.router.ServeHTTP(w, req)
}

func (s *Server) now() uint64 {
	return uint64(s.Now().Unix())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

// statusFor maps engine errors onto HTTP statuses: malformed input is 400,
// missing records 404, domain rule rejections 422.
func statusFor(err error) int {
	switch {
	case errors.Is(err, lending.ErrAmountZero),
		errors.Is(err, lending.ErrInvalidAmount),
		errors.Is(err, lending.ErrInvalidParams):
		return http.StatusBadRequest
	case errors.Is(err, lending.ErrPoolNotFound):
		return http.StatusNotFound
	case errors.Is(err, lending.ErrPoolExists):
		return http.StatusConflict
	case errors.Is(err, lending.ErrExceedsLTV),
		errors.Is(err, lending.ErrBadHealthFactor),
		errors.Is(err, lending.ErrInsufficientLiquidity),
		errors.Is(err, lending.ErrNotLiquidatable),
		errors.Is(err, lending.ErrNothingToLiquidate),
		errors.Is(err, lending.ErrInsufficientCollateralToSeize),
		errors.Is(err, lending.ErrNoOutstandingDebt),
		errors.Is(err, lending.ErrMathOverflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, lending.ErrInvalidOraclePrice),
		errors.Is(err, lending.ErrInvalidPrice):
		return http.StatusServiceUnavailable
	case errors.Is(err, common.ErrModulePaused):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decode(req *http.Request, target any) error {
	decoder := json.NewDecoder(req.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

type poolResponse struct {
	ID                      string `json:"id"`
	Asset                   string `json:"asset"`
	Decimals                uint8  `json:"decimals"`
	FeedID                  string `json:"feedId"`
	TotalLiquidity          uint64 `json:"totalLiquidity"`
	TotalBorrowed           uint64 `json:"totalBorrowed"`
	TotalShares             uint64 `json:"totalShares"`
	BorrowIndex             string `json:"borrowIndex"`
	BorrowRatePerSec        string `json:"borrowRatePerSec"`
	LastAccrualTs           uint64 `json:"lastAccrualTs"`
	LTVBps                  uint64 `json:"ltvBps"`
	LiquidationThresholdBps uint64 `json:"liquidationThresholdBps"`
	LiquidationBonusBps     uint64 `json:"liquidationBonusBps"`
	CloseFactorBps          uint64 `json:"closeFactorBps"`
}

func renderPool(pool *lending.Pool) poolResponse {
	index, rate := "0", "0"
	if pool.BorrowIndex != nil {
		index = pool.BorrowIndex.String()
	}
	if pool.BorrowRatePerSec != nil {
		rate = pool.BorrowRatePerSec.String()
	}
	return poolResponse{
		ID:                      pool.ID,
		Asset:                   pool.Asset,
		Decimals:                pool.Decimals,
		FeedID:                  pool.FeedID,
		TotalLiquidity:          pool.TotalLiquidity,
		TotalBorrowed:           pool.TotalBorrowed,
		TotalShares:             pool.TotalShares,
		BorrowIndex:             index,
		BorrowRatePerSec:        rate,
		LastAccrualTs:           pool.LastAccrualTs,
		LTVBps:                  pool.LTVBps,
		LiquidationThresholdBps: pool.LiquidationThresholdBps,
		LiquidationBonusBps:     pool.LiquidationBonusBps,
		CloseFactorBps:          pool.CloseFactorBps,
	}
}

func (s *Server) publishPoolGauges(poolID string) {
	pool, err := s.engine.Pool(poolID)
	if err != nil {
		return
	}
	index, rate := 0.0, 0.0
	if pool.BorrowIndex != nil {
		index, _ = new(big.Float).SetInt(pool.BorrowIndex).Float64()
	}
	if pool.BorrowRatePerSec != nil {
		rate, _ = new(big.Float).SetInt(pool.BorrowRatePerSec).Float64()
	}
	s.metrics.SetMarketGauges(pool.ID, index, rate)
}

type createPoolRequest struct {
	ID       string             `json:"id"`
	Asset    string             `json:"asset"`
	Decimals uint8              `json:"decimals"`
	FeedID   string             `json:"feedId"`
	Params   lending.PoolParams `json:"params"`
}

func (s *Server) handleCreatePool(w http.ResponseWriter, req *http.Request) {
	var body createPoolRequest
	if err := decode(req, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	start := time.Now()
	pool, err := s.engine.CreatePool(body.ID, body.Asset, body.Decimals, body.FeedID, body.Params, s.now())
	s.metrics.RecordOperation("create_pool", body.ID, err, time.Since(start))
	if err != nil {
		writeError(w, err)
		return
	}
	s.log.Info("pool created", "pool", pool.ID, "asset", pool.Asset)
	writeJSON(w, http.StatusCreated, renderPool(pool))
}

func (s *Server) handleListPools(w http.ResponseWriter, _ *http.Request) {
	pools, err := s.engine.Pools()
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]poolResponse, 0, len(pools))
	for _, pool := range pools {
		out = append(out, renderPool(pool))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetPool(w http.ResponseWriter, req *http.Request) {
	pool, err := s.engine.Pool(chi.URLParam(req, "poolID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderPool(pool))
}

type amountRequest struct {
	Actor  string `json:"actor"`
	Amount uint64 `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, req *http.Request) {
	poolID := chi.URLParam(req, "poolID")
	var body amountRequest
	if err := decode(req, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	start := time.Now()
	shares, err := s.engine.Deposit(types.Address(body.Actor), poolID, body.Amount, s.now())
	s.metrics.RecordOperation("deposit", poolID, err, time.Since(start))
	if err != nil {
		writeError(w, err)
		return
	}
	s.publishPoolGauges(poolID)
	writeJSON(w, http.StatusOK, map[string]uint64{"shares": shares})
}

type sharesRequest struct {
	Actor  string `json:"actor"`
	Shares uint64 `json:"shares"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, req *http.Request) {
	poolID := chi.URLParam(req, "poolID")
	var body sharesRequest
	if err := decode(req, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	start := time.Now()
	amount, err := s.engine.Withdraw(types.Address(body.Actor), poolID, body.Shares, s.now())
	s.metrics.RecordOperation("withdraw", poolID, err, time.Since(start))
	if err != nil {
		writeError(w, err)
		return
	}
	s.publishPoolGauges(poolID)
	writeJSON(w, http.StatusOK, map[string]uint64{"amount": amount})
}

func (s *Server) handleBorrow(w http.ResponseWriter, req *http.Request) {
	poolID := chi.URLParam(req, "poolID")
	var body amountRequest
	if err := decode(req, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	start := time.Now()
	err := s.engine.Borrow(types.Address(body.Actor), poolID, body.Amount, s.now())
	s.metrics.RecordOperation("borrow", poolID, err, time.Since(start))
	if err != nil {
		writeError(w, err)
		return
	}
	s.publishPoolGauges(poolID)
	writeJSON(w, http.StatusOK, map[string]uint64{"amount": body.Amount})
}

func (s *Server) handleRepay(w http.ResponseWriter, req *http.Request) {
	poolID := chi.URLParam(req, "poolID")
	var body amountRequest
	if err := decode(req, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	start := time.Now()
	remaining, err := s.engine.Repay(types.Address(body.Actor), poolID, body.Amount, s.now())
	s.metrics.RecordOperation("repay", poolID, err, time.Since(start))
	if err != nil {
		writeError(w, err)
		return
	}
	s.publishPoolGauges(poolID)
	writeJSON(w, http.StatusOK, map[string]uint64{"remainingDebt": remaining})
}

type liquidateRequest struct {
	Liquidator     string `json:"liquidator"`
	Borrower       string `json:"borrower"`
	DebtPool       string `json:"debtPool"`
	CollateralPool string `json:"collateralPool"`
	RepayAmount    uint64 `json:"repayAmount"`
}

func (s *Server) handleLiquidate(w http.ResponseWriter, req *http.Request) {
	var body liquidateRequest
	if err := decode(req, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	start := time.Now()
	result, err := s.engine.Liquidate(
		types.Address(body.Liquidator), types.Address(body.Borrower),
		body.DebtPool, body.CollateralPool, body.RepayAmount, s.now(),
	)
	s.metrics.RecordOperation("liquidate", body.DebtPool, err, time.Since(start))
	if err != nil {
		writeError(w, err)
		return
	}
	s.metrics.RecordLiquidation(body.DebtPool, body.CollateralPool)
	s.publishPoolGauges(body.DebtPool)
	s.log.Info("liquidation executed",
		"borrower", body.Borrower,
		"debtPool", body.DebtPool,
		"collateralPool", body.CollateralPool,
		"repaid", result.Repaid,
		"seized", result.Seized,
	)
	writeJSON(w, http.StatusOK, map[string]uint64{
		"repaid":       result.Repaid,
		"seized":       result.Seized,
		"healthBefore": result.HealthBefore,
	})
}

type positionResponse struct {
	Address            string `json:"address"`
	CollateralValueUSD uint64 `json:"collateralValueUsd1e6"`
	DebtValueUSD       uint64 `json:"debtValueUsd1e6"`
	HealthFactor       uint64 `json:"healthFactorBps"`
}

func renderPosition(position *lending.UserPosition) positionResponse {
	return positionResponse{
		Address:            string(position.Address),
		CollateralValueUSD: position.CollateralValueUSD,
		DebtValueUSD:       position.DebtValueUSD,
		HealthFactor:       position.HealthFactor,
	}
}

func (s *Server) handleGetPosition(w http.ResponseWriter, req *http.Request) {
	position, err := s.engine.Position(types.Address(chi.URLParam(req, "actor")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderPosition(position))
}

func (s *Server) handleReconcile(w http.ResponseWriter, req *http.Request) {
	actor := types.Address(chi.URLParam(req, "actor"))
	start := time.Now()
	position, err := s.engine.ReconcileUserPosition(actor, s.now())
	s.metrics.RecordOperation("reconcile", "", err, time.Since(start))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderPosition(position))
}

func (s *Server) handleGetPoolPosition(w http.ResponseWriter, req *http.Request) {
	position, err := s.engine.PoolPosition(
		types.Address(chi.URLParam(req, "actor")),
		chi.URLParam(req, "poolID"),
	)
	if err != nil {
		writeError(w, err)
		return
	}
	index := "0"
	if position.BorrowIndex != nil {
		index = position.BorrowIndex.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address":         string(position.Address),
		"poolId":          position.PoolID,
		"depositedAmount": position.DepositedAmount,
		"borrowedAmount":  position.BorrowedAmount,
		"shares":          position.Shares,
		"borrowIndex":     index,
	})
}

type priceRequest struct {
	FeedID string `json:"feedId"`
	Price  int64  `json:"price"`
	Expo   int32  `json:"expo"`
}

// handleSetPrice is the operator push endpoint for oracle quotes. The quote
// is stamped with the server clock.
func (s *Server) handleSetPrice(w http.ResponseWriter, req *http.Request) {
	var body priceRequest
	if err := decode(req, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if strings.TrimSpace(body.FeedID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "feedId required"})
		return
	}
	s.prices.SetQuote(body.FeedID, oracle.Quote{
		Price:       body.Price,
		Expo:        body.Expo,
		PublishTime: s.Now(),
	})
	writeJSON(w, http.StatusOK, map[string]string{"feedId": strings.TrimSpace(body.FeedID)})
}

type faucetRequest struct {
	Actor  string `json:"actor"`
	Asset  string `json:"asset"`
	Amount uint64 `json:"amount"`
}

func (s *Server) handleFaucet(w http.ResponseWriter, req *http.Request) {
	var body faucetRequest
	if err := decode(req, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.vault.Fund(types.Address(body.Actor), body.Asset, body.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{
		"balance": s.vault.Balance(types.Address(body.Actor), body.Asset),
	})
}
