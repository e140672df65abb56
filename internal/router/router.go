// Package router assembles the ops HTTP surface: health, status and
// Prometheus metrics.
package router

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler registers its routes on the router.
type Handler interface {
	RegisterRoutes(router *mux.Router, logger *zap.Logger)
}

type Router struct {
	router *mux.Router
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger, handlers []Handler) *Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	for _, h := range handlers {
		h.RegisterRoutes(r, logger)
	}

	return &Router{router: r, logger: logger.Named("router")}
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	rt.router.ServeHTTP(w, req)
}

// CreateServer builds the ops server on the given address.
func (rt *Router) CreateServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           rt.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
