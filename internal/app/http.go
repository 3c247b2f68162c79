package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	logx "remindbot/pkg/logx"
)

// httpServer exposes the small operational surface: a health snapshot and a
// manual sweep trigger. Bind to loopback unless fronted by something that
// authenticates.
type httpServer struct {
	log logx.Logger
	srv *http.Server
}

func newHTTPServer(addr string, a *App, log logx.Logger) *httpServer {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(a.Health())
	})
	mux.HandleFunc("GET /force-sweep", func(w http.ResponseWriter, r *http.Request) {
		a.sweep.RunNow()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	return &httpServer{
		log: log,
		srv: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 5 * time.Second,
			IdleTimeout: 60 * time.Second,
		},
	}
}

func (h *httpServer) Start(ctx context.Context) {
	go func() {
		h.log.Info("http server listening", logx.String("addr", h.srv.Addr))
		if err := h.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.log.Error("http server failed", logx.Err(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.srv.Shutdown(shutdownCtx)
	}()
}

func (h *httpServer) Stop(ctx context.Context) {
	if err := h.srv.Shutdown(ctx); err != nil {
		h.log.Warn("http shutdown failed", logx.Err(err))
	}
}
