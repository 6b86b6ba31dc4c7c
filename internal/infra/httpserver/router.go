package httpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	log "github.com/sirupsen/logrus"

	"github.com/firmproof/firmproof/internal/analysisfile"
	"github.com/firmproof/firmproof/internal/application"
	appanalyses "github.com/firmproof/firmproof/internal/application/analyses"
	appledger "github.com/firmproof/firmproof/internal/application/ledger"
	appsettings "github.com/firmproof/firmproof/internal/application/settings"
	"github.com/firmproof/firmproof/internal/chains"
	domain "github.com/firmproof/firmproof/internal/domain/analyses"
	domledger "github.com/firmproof/firmproof/internal/domain/ledger"
	"github.com/firmproof/firmproof/internal/middleware"
)

// BalanceFunc reports the connected account balance in wei. Optional: a nil
// func omits the balance from the wallet status response.
type BalanceFunc func(ctx context.Context) (*big.Int, error)

// Deps carries everything the router needs wired in.
type Deps struct {
	Analyses *appanalyses.Service
	Coord    *appledger.Coordinator
	Settings *appsettings.Service
	Wallet   domledger.Wallet
	Pending  domledger.PendingStore
	Clock    application.Clock
	Balance  BalanceFunc

	Health  map[string]middleware.HealthChecker
	APIKeys map[string]string // key -> tenant; empty disables auth
	Limiter *middleware.RateLimiter
}

type Router struct {
	analyses *appanalyses.Service
	coord    *appledger.Coordinator
	settings *appsettings.Service
	wallet   domledger.Wallet
	pending  domledger.PendingStore
	clock    application.Clock
	balance  BalanceFunc
}

func NewRouter(d Deps) http.Handler {
	r := &Router{
		analyses: d.Analyses,
		coord:    d.Coord,
		settings: d.Settings,
		wallet:   d.Wallet,
		pending:  d.Pending,
		clock:    d.Clock,
		balance:  d.Balance,
	}

	mux := chi.NewRouter()
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	mux.Use(middleware.Logging)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(middleware.APIKeyAuth(d.APIKeys))

	mux.Get("/health", middleware.HealthHandler(d.Health))
	mux.Get("/metrics", middleware.MetricsHandler())

	mux.Get("/v1/wallet", r.wrap(r.handleWalletStatus))
	mux.Get("/v1/contract", r.wrap(r.handleContractGet))
	mux.Put("/v1/contract", r.wrap(r.handleContractSet))
	mux.Delete("/v1/contract", r.wrap(r.handleContractClear))

	mux.Route("/v1/{tenant}", func(rt chi.Router) {
		if d.Limiter != nil {
			rt.Use(d.Limiter.Middleware)
		}
		rt.Post("/analyses", r.wrap(r.handleUpload))
		rt.Get("/analyses/latest", r.wrap(r.handleLatest))
		rt.Get("/analyses/{id}", r.wrap(r.handleGet))
		rt.Get("/analyses/{id}/functions", r.wrap(r.handleFunctions))
		rt.Get("/analyses/{id}/flows", r.wrap(r.handleFlows))
		rt.Post("/analyses/{id}/ledger", r.wrap(r.handleLedgerLog))
		rt.Get("/analyses/{id}/ledger", r.wrap(r.handleLedgerStatus))
		rt.Get("/summary", r.wrap(r.handleSummary))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			log.WithFields(log.Fields{"path": req.URL.Path}).WithError(err).Error("handler error")
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

// POST /v1/{tenant}/analyses
// multipart form: file (required), isa (optional, auto-detected when absent)
func (r *Router) handleUpload(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	if err := middleware.ValidateTenant(tenant); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}

	req.Body = http.MaxBytesReader(w, req.Body, middleware.MaxUploadBytes)
	if err := req.ParseMultipartForm(middleware.MaxUploadBytes); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return nil
	}
	file, header, err := req.FormFile("file")
	if err != nil {
		http.Error(w, "file is required", http.StatusBadRequest)
		return nil
	}
	defer file.Close()

	if err := middleware.ValidateFilename(header.Filename); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}

	tmp, err := os.CreateTemp("", "firmware-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	tmp.Close()

	isa := domain.ISA(req.FormValue("isa"))
	if isa == "" {
		isa = analysisfile.DetectISA(tmp.Name())
	} else if err := middleware.ValidateISA(string(isa)); err != nil {
		os.Remove(tmp.Name())
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}

	a, err := r.analyses.StartAnalysis(req.Context(), appanalyses.UploadCommand{
		TenantID:  tenant,
		Filename:  header.Filename,
		FileSize:  header.Size,
		LocalPath: tmp.Name(),
		ISA:       isa,
	})
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}

	// detached from the request so a client disconnect cannot kill it
	middleware.IncrementAnalyses()
	go func() {
		middleware.IncrementAnalysesRunning()
		defer middleware.DecrementAnalysesRunning()
		if err := r.analyses.RunPipelineUntilDone(tenant, a.ID); err != nil {
			middleware.IncrementAnalysesFailed()
			log.WithFields(log.Fields{"tenant": tenant, "analysis": a.ID}).
				WithError(err).Error("background pipeline failed")
		}
	}()

	return writeJSON(w, http.StatusAccepted, map[string]any{
		"status":   "queued",
		"analysis": a,
	})
}

// GET /v1/{tenant}/analyses/latest?limit=20
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.analyses.Latest(req.Context(), tenant, limit)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/{tenant}/analyses/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	id := chi.URLParam(req, "id")

	a, err := r.analyses.Get(req.Context(), tenant, domain.AnalysisID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, a)
}

// GET /v1/{tenant}/analyses/{id}/functions
func (r *Router) handleFunctions(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	fns, err := r.analyses.FunctionsFor(req.Context(), domain.AnalysisID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, fns)
}

// GET /v1/{tenant}/analyses/{id}/flows
func (r *Router) handleFlows(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	steps, err := r.analyses.StepsFor(req.Context(), domain.AnalysisID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, steps)
}

// GET /v1/{tenant}/summary?days=7
func (r *Router) handleSummary(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	days, _ := strconv.Atoi(req.URL.Query().Get("days"))

	summary, err := r.analyses.Summary(req.Context(), tenant, days)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, summary)
}

// POST /v1/{tenant}/analyses/{id}/ledger
//
// Runs the coordinator and, as the caller, persists the outcome: a receipt
// is reconciled into the record store, a timeout is parked for the poller,
// a user rejection leaves the record untouched.
func (r *Router) handleLedgerLog(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	id := chi.URLParam(req, "id")
	ctx := req.Context()

	a, err := r.analyses.Get(ctx, tenant, domain.AnalysisID(id))
	if err != nil {
		return err
	}
	if a.Status != domain.StatusComplete {
		http.Error(w, "analysis is not complete", http.StatusConflict)
		return nil
	}

	middleware.IncrementLedgerWrites()
	rcpt, err := r.coord.LogAnalysis(ctx, appledger.LogCommand{
		AnalysisID:  string(a.ID),
		Filename:    a.Filename,
		CryptoCount: a.Counts.Crypto,
		TotalCount:  a.Counts.Total,
	})
	if err == nil {
		if rerr := r.analyses.ReconcileReceipt(ctx, tenant, id, rcpt, r.clock.Now()); rerr != nil {
			log.WithFields(log.Fields{"analysis": id}).WithError(rerr).Error("reconciling receipt")
		}
		return writeJSON(w, http.StatusOK, map[string]any{
			"status":       "confirmed",
			"receipt":      rcpt,
			"explorer_url": chains.ExplorerTxURL(r.activeChainID(ctx), rcpt.TxHash),
		})
	}

	kind := domledger.KindOf(err)
	var le *domledger.Error
	errors.As(err, &le)

	switch kind {
	case domledger.KindConfirmationTimeout:
		// broadcast but unconfirmed: park it, the poller finishes the job
		if le != nil && le.TxHash != "" {
			if perr := r.analyses.MarkLedgerPending(ctx, tenant, id, le.TxHash); perr != nil {
				log.WithError(perr).Error("marking ledger pending")
			}
			if perr := r.pending.Park(ctx, domledger.PendingLog{
				TenantID:    tenant,
				AnalysisID:  id,
				TxHash:      le.TxHash,
				IsUpdate:    a.Ledger.State == domain.LedgerConfirmed,
				SubmittedAt: r.clock.Now(),
			}); perr != nil {
				log.WithError(perr).Error("parking pending submission")
			}
		}
	case domledger.KindUserRejected, domledger.KindNotConnected,
		domledger.KindNotConfigured, domledger.KindInvalidInput:
		// a rejection or failed precondition leaves the record as-is
	default:
		middleware.IncrementLedgerFailures()
		if ferr := r.analyses.MarkLedgerFailed(ctx, tenant, id); ferr != nil {
			log.WithError(ferr).Error("marking ledger failed")
		}
	}

	status := "error"
	if kind == domledger.KindConfirmationTimeout {
		status = "pending"
	}
	body := map[string]any{
		"status":  status,
		"kind":    string(kind),
		"message": kindMessage(kind),
	}
	if le != nil && le.TxHash != "" {
		body["tx_hash"] = le.TxHash
	}
	return writeJSON(w, kindStatus(kind), body)
}

// GET /v1/{tenant}/analyses/{id}/ledger
func (r *Router) handleLedgerStatus(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	id := chi.URLParam(req, "id")

	a, err := r.analyses.Get(req.Context(), tenant, domain.AnalysisID(id))
	if err != nil {
		return err
	}

	body := map[string]any{"ledger": a.Ledger}
	if a.Ledger.TxHash != "" {
		body["explorer_url"] = chains.ExplorerTxURL(r.activeChainID(req.Context()), a.Ledger.TxHash)
	}
	return writeJSON(w, http.StatusOK, body)
}

// GET /v1/wallet
func (r *Router) handleWalletStatus(w http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	account, err := r.wallet.ConnectedAccount(ctx)
	if err != nil {
		return err
	}
	body := map[string]any{
		"connected": account != "",
		"account":   account,
	}
	if account != "" {
		if chainID, err := r.wallet.ActiveChainID(ctx); err == nil && chainID != nil {
			body["chain_id"] = chainID.Uint64()
			body["chain_name"] = chains.Name(chainID.Uint64())
			body["explorer_url"] = chains.ExplorerAddressURL(chainID.Uint64(), account)
		}
		if r.balance != nil {
			if bal, err := r.balance(ctx); err == nil {
				body["balance_wei"] = bal.String()
			}
		}
	}
	return writeJSON(w, http.StatusOK, body)
}

// GET /v1/contract
func (r *Router) handleContractGet(w http.ResponseWriter, req *http.Request) error {
	addr, source, ok, err := r.settings.Resolve(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"configured": ok,
		"address":    addr,
		"source":     source,
	})
}

// PUT /v1/contract  {"address": "0x..."}
func (r *Router) handleContractSet(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return nil
	}
	if err := r.settings.Set(req.Context(), body.Address); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// DELETE /v1/contract
func (r *Router) handleContractClear(w http.ResponseWriter, req *http.Request) error {
	if err := r.settings.Clear(req.Context()); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (r *Router) activeChainID(ctx context.Context) uint64 {
	if chainID, err := r.wallet.ActiveChainID(ctx); err == nil && chainID != nil {
		return chainID.Uint64()
	}
	return 0
}

// One distinct, user-renderable message per taxonomy kind. A rejection or a
// confirmation timeout is not a generic failure and must not read like one.
func kindMessage(kind domledger.Kind) string {
	switch kind {
	case domledger.KindNotConnected:
		return "no wallet account is connected"
	case domledger.KindNotConfigured:
		return "no ledger contract address is configured"
	case domledger.KindInvalidInput:
		return "analysis id or function counts are invalid"
	case domledger.KindUserRejected:
		return "transaction was declined in the wallet; submit again when ready"
	case domledger.KindInsufficientFunds:
		return "the connected account cannot cover the gas cost"
	case domledger.KindDuplicateCreate:
		return "a record for this analysis already exists on-chain; retry to update it"
	case domledger.KindConfirmationTimeout:
		return "transaction submitted but not yet confirmed; it may still land"
	case domledger.KindNetwork:
		return "could not reach the chain node"
	default:
		return "unexpected ledger error"
	}
}

func kindStatus(kind domledger.Kind) int {
	switch kind {
	case domledger.KindNotConnected, domledger.KindNotConfigured:
		return http.StatusPreconditionFailed
	case domledger.KindInvalidInput:
		return http.StatusBadRequest
	case domledger.KindUserRejected, domledger.KindDuplicateCreate:
		return http.StatusConflict
	case domledger.KindInsufficientFunds:
		return http.StatusPaymentRequired
	case domledger.KindConfirmationTimeout:
		return http.StatusAccepted
	case domledger.KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
