// Package ledgerhttp serves accounts, flows, snapshots and on-demand reconciliation.
package ledgerhttp

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"fundledger/internal/gateway/corpaction"
	"fundledger/internal/ledger"
	"fundledger/internal/reconcile"
	"fundledger/internal/store"
	"fundledger/internal/timeseries"
	"fundledger/internal/tradingday"
	"fundledger/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const maxBodyBytes = 1 << 20

// Deps are the services behind the API. Only Ledger is required; routes whose
// service is nil are not registered.
type Deps struct {
	Ledger     *ledger.Service
	Syncer     *timeseries.Syncer
	Reconciler *reconcile.Reconciler
	Dividends  *corpaction.Importer
	Runs       store.RunLogRepository
}

type Router struct {
	deps       Deps
	flowSchema *jsonschema.Schema
}

func NewRouter(deps Deps) (*Router, error) {
	schema, err := compileSchema("flow_request.json", flowRequestSchema)
	if err != nil {
		return nil, err
	}
	return &Router{deps: deps, flowSchema: schema}, nil
}

// Register mounts the API under group.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/accounts", r.handleListAccounts)
	group.POST("/accounts", r.handleOpenAccount)
	group.GET("/accounts/:id", r.handleGetAccount)
	group.GET("/accounts/:id/flows", r.handleListFlows)
	group.POST("/accounts/:id/flows", r.handleApplyFlow)
	group.DELETE("/accounts/:id/flows/:flow_id", r.handleRevertFlow)
	group.GET("/accounts/:id/snapshots/:day", r.handleSnapshot)
	if r.deps.Syncer != nil {
		group.POST("/accounts/:id/sync", r.handleSync)
	}
	if r.deps.Reconciler != nil {
		group.POST("/accounts/:id/reconcile", r.handleReconcile)
	}
	if r.deps.Dividends != nil {
		group.POST("/dividends", r.handleImportDividends)
	}
	if r.deps.Runs != nil {
		group.GET("/runs", r.handleListRuns)
	}
}

func (r *Router) handleListRuns(c *gin.Context) {
	limit := 20
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}
	runs, err := r.deps.Runs.List(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (r *Router) handleListAccounts(c *gin.Context) {
	accounts, err := r.deps.Ledger.Store().Accounts().List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

func (r *Router) handleOpenAccount(c *gin.Context) {
	var req ledger.OpenAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	acc, err := r.deps.Ledger.OpenAccount(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, acc)
}

func (r *Router) handleGetAccount(c *gin.Context) {
	acc, err := r.deps.Ledger.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (r *Router) handleListFlows(c *gin.Context) {
	q := store.FlowQuery{
		AccountID: c.Param("id"),
		Symbol:    strings.ToUpper(strings.TrimSpace(c.Query("symbol"))),
		Market:    strings.ToUpper(strings.TrimSpace(c.Query("market"))),
	}
	var err error
	if q.From, err = tradingday.Parse(c.Query("from")); err != nil {
		badRequest(c, err)
		return
	}
	if q.To, err = tradingday.Parse(c.Query("to")); err != nil {
		badRequest(c, err)
		return
	}
	for _, raw := range c.QueryArray("type") {
		t, err := types.ParseFlowType(raw)
		if err != nil {
			badRequest(c, err)
			return
		}
		q.Types = append(q.Types, t)
	}
	if _, err := r.deps.Ledger.GetAccount(c.Request.Context(), q.AccountID); err != nil {
		fail(c, err)
		return
	}
	flows, err := r.deps.Ledger.Store().Flows().List(c.Request.Context(), q)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"flows": flows})
}

func (r *Router) handleApplyFlow(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		badRequest(c, err)
		return
	}
	req, err := decodeFlowRequest(r.flowSchema, body)
	if err != nil {
		badRequest(c, err)
		return
	}
	flow, err := r.deps.Ledger.ApplyFlow(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, flow)
}

func (r *Router) handleRevertFlow(c *gin.Context) {
	ctx := c.Request.Context()
	accountID := c.Param("id")
	flow, err := r.deps.Ledger.Store().Flows().Get(ctx, c.Param("flow_id"))
	if err != nil {
		fail(c, err)
		return
	}
	if flow.AccountID != accountID {
		fail(c, store.ErrNotFound)
		return
	}
	unlock, err := r.deps.Ledger.Locker().Lock(ctx, accountID)
	if err != nil {
		fail(c, err)
		return
	}
	defer unlock()
	acc, err := r.deps.Ledger.RevertFlow(ctx, flow.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (r *Router) handleSnapshot(c *gin.Context) {
	day, err := tradingday.Parse(c.Param("day"))
	if err != nil || day.IsZero() {
		if err == nil {
			err = errors.New("day is required")
		}
		badRequest(c, err)
		return
	}
	snap, err := r.deps.Ledger.DailySnapshot(c.Request.Context(), c.Param("id"), day)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (r *Router) handleSync(c *gin.Context) {
	through, ok := r.through(c)
	if !ok {
		return
	}
	rep, err := r.deps.Syncer.SyncAccount(c.Request.Context(), c.Param("id"), through)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (r *Router) handleReconcile(c *gin.Context) {
	through, ok := r.through(c)
	if !ok {
		return
	}
	reports, err := r.deps.Reconciler.ReconcileAccount(c.Request.Context(), c.Param("id"), through)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

func (r *Router) handleImportDividends(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		badRequest(c, err)
		return
	}
	n, err := r.deps.Dividends.Import(c.Request.Context(), body)
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": n})
}

// through reads ?through=, defaulting to the last completed trading day.
func (r *Router) through(c *gin.Context) (tradingday.Date, bool) {
	day, err := tradingday.Parse(c.Query("through"))
	if err != nil {
		badRequest(c, err)
		return tradingday.Date{}, false
	}
	if day.IsZero() {
		day = r.deps.Ledger.LastTradingDay()
	}
	return day, true
}
