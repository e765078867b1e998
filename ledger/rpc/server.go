package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/ledgerwatch/erigon-lib/kv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultPort = "8080"

// Server is a read-only JSON-RPC view over the ledger. It never writes.
type Server struct {
	db      kv.RoDB
	logger  *zerolog.Logger
	methods map[string]Method
}

func NewServer(db kv.RoDB, logger *zerolog.Logger) *Server {
	if logger == nil {
		logger = &log.Logger
	}

	s := &Server{
		db:      db,
		logger:  logger,
		methods: make(map[string]Method),
	}

	s.methods["getHolder"] = s.getHolder
	s.methods["getTransfer"] = s.getTransfer
	s.methods["getHolderTransfers"] = s.getHolderTransfers
	s.methods["getSupply"] = s.getSupply
	s.methods["getCursor"] = s.getCursor
	s.methods["getHolderCount"] = s.getHolderCount

	return s
}

// AddMethod registers an additional method. Built-in names can't be replaced.
func (s *Server) AddMethod(name string, m Method) error {
	if _, exists := s.methods[name]; exists {
		return fmt.Errorf("%w: %s", ErrMethodAlreadyRegistered, name)
	}

	s.methods[name] = m

	return nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/rpc", s.handleRPC)
	mux.HandleFunc("/health", s.healthcheck)

	return mux
}

// StartHTTPServer serves until ctx is done, then shuts down gracefully.
func (s *Server) StartHTTPServer(ctx context.Context, port string) error {
	port = strings.TrimPrefix(port, ":")
	if port == "" {
		port = defaultPort
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn().Err(err).Msg("RPC server shutdown")
		}
	}()

	s.logger.Info().Str("addr", server.Addr).Int("methods", len(s.methods)).Msg("Starting ledger RPC server")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)

		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, codeParseError, "Parse error", nil)

		return
	}

	if req.JSONRPC != jsonRPCVersion || req.Method == "" {
		writeError(w, codeInvalidRequest, "Invalid Request", req.ID)

		return
	}

	result, err := s.handleMethod(r.Context(), req.Method, req.Params)
	if err != nil {
		code := errorCode(err)
		if code == codeInternalError {
			s.logger.Error().Err(err).Str("method", req.Method).Msg("RPC method failed")
		}

		writeError(w, code, err.Error(), req.ID)

		return
	}

	writeJSON(w, http.StatusOK, JSONRPCResponse{
		JSONRPC: jsonRPCVersion,
		Result:  result,
		ID:      req.ID,
	})
}

func (s *Server) handleMethod(ctx context.Context, method string, params []any) (any, error) {
	m, ok := s.methods[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, method)
	}

	return m(ctx, params)
}

func (s *Server) healthcheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)

		return
	}

	status, code := healthStatusHealthy, http.StatusOK

	err := s.db.View(r.Context(), func(kv.Tx) error { return nil })
	if err != nil {
		s.logger.Warn().Err(err).Msg("Health check failed")

		status, code = healthStatusUnhealthy, http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":      status,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"rpc_methods": len(s.methods),
	})
}
