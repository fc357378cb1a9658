package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"trades-selfplay/internal/journal"
	"trades-selfplay/internal/position"
	"trades-selfplay/internal/selfplay"
)

type statResponse struct {
	Iteration int                   `json:"iteration"`
	Stat      selfplay.StatSnapshot `json:"stat"`
}

type profitsResponse struct {
	RunID   string            `json:"run_id"`
	Profits []position.Profit `json:"profits"`
}

func (a *App) statusHandler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		a.writeJSON(w, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	router.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := 200
		if qs := q.Get("limit"); qs != "" {
			if v, err := strconv.Atoi(qs); err == nil && v > 0 {
				limit = min(v, 1000)
			}
		}

		eventType := journal.EventType("")
		if typ := strings.TrimSpace(q.Get("type")); typ != "" {
			eventType = journal.EventType(strings.ToLower(typ))
		}

		events, err := a.journal.ListEvents(r.Context(), eventType, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		a.writeJSON(w, events)
	}).Methods(http.MethodGet)
	router.HandleFunc("/profits/{run_id}", func(w http.ResponseWriter, r *http.Request) {
		runID := mux.Vars(r)["run_id"]
		profits, err := a.journal.ListProfits(r.Context(), runID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		a.writeJSON(w, profitsResponse{RunID: runID, Profits: profits})
	}).Methods(http.MethodGet)
	router.HandleFunc("/stat", func(w http.ResponseWriter, r *http.Request) {
		live := a.live.Load()
		if live == nil {
			http.Error(w, "没有正在运行的迭代", http.StatusNotFound)
			return
		}
		a.writeJSON(w, statResponse{Iteration: live.index, Stat: live.stat.Snapshot()})
	}).Methods(http.MethodGet)

	if len(a.cfg.Monitor.AllowedOrigins) == 0 {
		return router
	}
	return cors.New(cors.Options{
		AllowedOrigins: a.cfg.Monitor.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(router)
}

func (a *App) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("写入监控响应失败", zap.Error(err))
	}
}

func startMonitorServer(ctx context.Context, handler http.Handler, port int, logger *zap.Logger) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("关闭监控服务失败", zap.Error(err))
		}
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("监控服务异常", zap.Error(err))
		}
	}()

	logger.Info("监控接口已启动", zap.String("addr", addr))
	return nil
}
