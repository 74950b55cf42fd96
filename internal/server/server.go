// Package server exposes the RPC surface to the sibling service and the
// outbound client that pushes stock-master mutations back.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/twstock/internal/config"
	"github.com/aristath/twstock/internal/sources"
)

// Quoter is the multiplexer surface the quote endpoint fans out through.
type Quoter interface {
	FetchQuote(ctx context.Context, symbol string) (sources.StockQuote, error)
}

// Server is the inbound RPC listener.
type Server struct {
	cfg    config.RPCServer
	quoter Quoter
	log    zerolog.Logger
	http   *http.Server
}

// New creates the RPC server. Port 0 disables it.
func New(cfg config.RPCServer, quoter Quoter, log zerolog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		quoter: quoter,
		log:    log.With().Str("component", "rpc_server").Logger(),
	}
}

// Start runs the listener in a background goroutine; it never blocks main.
func (s *Server) Start() {
	if s.cfg.Port == 0 {
		s.log.Info().Msg("rpc server disabled")
		return
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))
	r.Post("/rpc/control", s.handleControl)
	r.Post("/rpc/stock/update-stock-info", s.handleUpdateStockInfo)
	r.Post("/rpc/stock/fetch-current-stock-quotes", s.handleFetchQuotes)

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	useTLS := s.cfg.CertFile != "" && s.cfg.KeyFile != ""
	go func() {
		var err error
		if useTLS {
			s.log.Info().Int("port", s.cfg.Port).Msg("rpc server listening (tls)")
			err = s.http.ListenAndServeTLS(s.cfg.CertFile, s.cfg.KeyFile)
		} else {
			s.log.Info().Int("port", s.cfg.Port).Msg("rpc server listening")
			err = s.http.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("rpc server stopped")
		}
	}()
}

// Shutdown stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// controlResponse is the liveness answer, carrying basic host stats.
type controlResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	msg := "ok"
	if avg, err := load.Avg(); err == nil {
		if vm, err := mem.VirtualMemory(); err == nil {
			msg = fmt.Sprintf("ok load=%.2f mem=%.1f%%", avg.Load1, vm.UsedPercent)
		}
	}
	writeJSON(w, http.StatusOK, controlResponse{Code: 0, Message: msg})
}

func (s *Server) handleUpdateStockInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotImplemented, controlResponse{
		Code:    http.StatusNotImplemented,
		Message: "update_stock_info is not implemented",
	})
}

// fetchQuotesRequest asks for live quotes for a symbol batch.
type fetchQuotesRequest struct {
	Symbols []string `json:"symbols"`
}

// StockPrice is one symbol's live quote on the wire. Unreachable symbols
// come back zeroed rather than omitted.
type StockPrice struct {
	Symbol      string `json:"symbol"`
	Price       string `json:"price"`
	Change      string `json:"change"`
	ChangeRange string `json:"change_range"`
}

type fetchQuotesResponse struct {
	StockPrices []StockPrice `json:"stock_prices"`
}

func (s *Server) handleFetchQuotes(w http.ResponseWriter, r *http.Request) {
	var req fetchQuotesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	resp := fetchQuotesResponse{StockPrices: make([]StockPrice, 0, len(req.Symbols))}
	for _, symbol := range req.Symbols {
		price := StockPrice{Symbol: symbol, Price: "0", Change: "0", ChangeRange: "0"}
		quote, err := s.quoter.FetchQuote(r.Context(), symbol)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("quote fetch failed")
		} else {
			price.Price = quote.Price.String()
			price.Change = quote.Change.String()
			price.ChangeRange = quote.ChangePercent.String()
		}
		resp.StockPrices = append(resp.StockPrices, price)
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
