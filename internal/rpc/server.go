// Package rpc exposes the price/quote RPC surface over HTTP, plus a
// GetHealth liveness endpoint.
//
// One chi router, the usual middleware stack (Recoverer, RequestID,
// RealIP, a logging middleware, Timeout, cors.Handler, conditional
// Compress), and a single struct holding the router plus every handler
// dependency. There is one RPC surface rather than dozens of REST
// resources, so the handlers live directly on Server instead of being
// split into a separate handlers subpackage.
package rpc

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/stablesats/internal/price"
	"github.com/aristath/stablesats/internal/pubsub"
	"github.com/aristath/stablesats/internal/quote"
)

// Config holds everything Server needs to construct its routes.
type Config struct {
	Port    int
	DevMode bool
	Log     zerolog.Logger

	PriceEngine *price.Engine
	Mixer       *price.Mixer
	Quotes      *quote.Engine
	Bus         *pubsub.Bus
}

// Server is the HTTP front door for the price/quote surface.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger

	price  *price.Engine
	mixer  *price.Mixer
	quotes *quote.Engine
	bus    *pubsub.Bus
}

// New builds a Server and wires its routes. Call Start to listen.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "rpc").Logger(),
		price:  cfg.PriceEngine,
		mixer:  cfg.Mixer,
		quotes: cfg.Quotes,
		bus:    cfg.Bus,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/rpc", func(r chi.Router) {
		r.Post("/GetCentsFromSatsForImmediateBuy", s.handleConvert(directionBuy, unitSats, true))
		r.Post("/GetCentsFromSatsForImmediateSell", s.handleConvert(directionSell, unitSats, true))
		r.Post("/GetCentsFromSatsForFutureBuy", s.handleConvert(directionBuy, unitSats, false))
		r.Post("/GetCentsFromSatsForFutureSell", s.handleConvert(directionSell, unitSats, false))
		r.Post("/GetSatsFromCentsForImmediateBuy", s.handleConvert(directionBuy, unitCents, true))
		r.Post("/GetSatsFromCentsForImmediateSell", s.handleConvert(directionSell, unitCents, true))
		r.Post("/GetSatsFromCentsForFutureBuy", s.handleConvert(directionBuy, unitCents, false))
		r.Post("/GetSatsFromCentsForFutureSell", s.handleConvert(directionSell, unitCents, false))
		r.Get("/GetCentsPerSatsExchangeMidRate", s.handleMidRate)
		r.Get("/GetMixedMidRate", s.handleMixedMidRate)
		r.Post("/GetQuoteToBuyUsd", s.handleGetQuote(quote.BuyCents))
		r.Post("/GetQuoteToSellUsd", s.handleGetQuote(quote.SellCents))
		r.Post("/AcceptQuote", s.handleAcceptQuote)
	})
}

// Handler returns the underlying router so tests can drive it directly
// without binding a port.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens and blocks until the server is shut down.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
