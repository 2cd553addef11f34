package http

import (
	"net/http"
	"strconv"

	"github.com/YelzhanWeb/fooddelivery/internal/adapter/logger"
	"github.com/YelzhanWeb/fooddelivery/internal/config"
)

type Routes interface {
	Register(mux *http.ServeMux)
}

// NewServer mounts routes behind the recovery and logging middleware.
func NewServer(cfg config.HTTPConfig, lgr logger.Logger, routes ...Routes) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	for _, rt := range routes {
		rt.Register(mux)
	}

	return &http.Server{
		Addr:         addr(cfg.Port),
		Handler:      Chain(mux, LoggingMiddleware(lgr), RecoveryMiddleware(lgr)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func addr(port int) string {
	return ":" + strconv.Itoa(port)
}
