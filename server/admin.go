package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/Tsukikage7/questline/logger"
	"github.com/Tsukikage7/questline/metrics"
	"github.com/Tsukikage7/questline/saga"
)

// Admin Saga 审计记录的只读查询接口.
//
//	GET /healthz                       存活检查
//	GET /sagas/{id}                    单条记录
//	GET /sagas?status=FAILED&limit=20  按状态列出，开始时间倒序
//	GET|PUT /loglevel                  查看或修改日志级别，仅 zap logger
type Admin struct {
	store saga.Store
	opts  *adminOptions
	mux   *http.ServeMux
}

// NewAdminHandler 创建管理接口.
func NewAdminHandler(store saga.Store, opts ...AdminOption) (*Admin, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	o := &adminOptions{defaultLimit: 50, maxLimit: 500}
	for _, opt := range opts {
		opt(o)
	}

	a := &Admin{store: store, opts: o, mux: http.NewServeMux()}
	a.handle("GET /healthz", "/healthz", http.HandlerFunc(a.health))
	a.handle("GET /sagas/{id}", "/sagas/{id}", http.HandlerFunc(a.get))
	a.handle("GET /sagas", "/sagas", http.HandlerFunc(a.list))
	if o.collector != nil {
		a.mux.Handle("GET "+o.collector.Path(), o.collector.Handler())
	}
	if h, ok := logger.LevelHandler(o.logger); ok {
		a.handle("GET /loglevel", "/loglevel", h)
		a.handle("PUT /loglevel", "/loglevel", h)
	}
	return a, nil
}

func (a *Admin) handle(route, pattern string, h http.Handler) {
	mws := []Middleware{Recover(a.opts.logger)}
	if a.opts.tracer != nil {
		mws = append(mws, Trace(a.opts.tracer, pattern))
	}
	if a.opts.collector != nil {
		mws = append(mws, metrics.HTTPMiddleware(a.opts.collector, pattern))
	}
	a.mux.Handle(route, Chain(h, mws...))
}

// ServeHTTP 实现 http.Handler.
func (a *Admin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

func (a *Admin) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *Admin) get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := a.store.Get(r.Context(), id)
	if errors.Is(err, saga.ErrSagaNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		a.logError(r, err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *Admin) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status, err := saga.ParseStatus(q.Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	limit := a.opts.defaultLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}
	limit = min(limit, a.opts.maxLimit)

	records, err := a.store.List(r.Context(), status, limit)
	if err != nil {
		a.logError(r, err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if records == nil {
		records = []*saga.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"count":   len(records),
		"records": records,
	})
}

func (a *Admin) logError(r *http.Request, err error) {
	if a.opts.logger == nil {
		return
	}
	a.opts.logger.WithContext(r.Context()).With(
		logger.String("path", r.URL.Path),
		logger.Err(err),
	).Error("[Admin] 查询审计记录失败")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
