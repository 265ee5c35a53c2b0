package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/vocdoni/anondonation/log"
	"github.com/vocdoni/anondonation/wallet"
)

const maxRequestBody = 8 << 20

type handlerFunc func(ctx context.Context, params any) (any, error)

// Server serves a wallet.Signer to remote clients.
type Server struct {
	router  *chi.Mux
	signer  wallet.Signer
	methods map[string]handlerFunc
}

// NewServer returns the HTTP server for signer.
func NewServer(signer wallet.Signer) *Server {
	s := &Server{signer: signer}
	s.methods = map[string]handlerFunc{
		MethodUnshieldedAddress: func(ctx context.Context, _ any) (any, error) {
			return signer.UnshieldedAddress(ctx)
		},
		MethodConfiguration: func(ctx context.Context, _ any) (any, error) {
			return signer.Configuration(ctx)
		},
		MethodBalance: signer.BalanceUnsealedTransaction,
		MethodSubmit:  signer.SubmitTransaction,
		MethodProve:   signer.ProveTransaction,
	}
	s.initRouter()
	return s
}

// Router returns the chi router for testing purposes.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) initRouter() {
	s.router = chi.NewRouter()
	s.router.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}).Handler)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(5 * time.Minute))

	log.Debugw("register handler", "endpoint", PingEndpoint, "method", "GET")
	s.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	log.Debugw("register handler", "endpoint", "/{method}", "method", "POST")
	s.router.Post("/{method}", s.handle)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	method := chi.URLParam(r, "method")
	fn, ok := s.methods[method]
	if !ok {
		http.Error(w, fmt.Sprintf("unknown method %q", method), http.StatusNotFound)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		http.Error(w, "could not read body", http.StatusBadRequest)
		return
	}
	var req request
	if err := decMode.Unmarshal(body, &req); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}
	resp := response{ID: req.ID}
	result, err := fn(r.Context(), req.Params)
	if err != nil {
		log.Debugw("signer method failed", "method", method, "error", err.Error())
		resp.Error = &rpcError{Code: errorCode(err), Message: err.Error()}
	} else if resp.Result, err = encMode.Marshal(result); err != nil {
		resp.Error = &rpcError{Code: codeRejected, Message: fmt.Sprintf("encode result: %v", err)}
	}
	data, err := encMode.Marshal(resp)
	if err != nil {
		http.Error(w, "could not encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	if _, err := w.Write(data); err != nil {
		log.Warnw("failed to write response", "error", err)
	}
}
