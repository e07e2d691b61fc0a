package http

import (
	"context"
	"net/http"
	"time"

	"spendguard/internal/service"
)

type Server struct {
	srv *http.Server
}

func NewServer(addr string, svc service.SpendingService, secret string, insecure bool) *Server {
	mux := http.NewServeMux()
	h := NewHandler(svc, secret, insecure)
	h.Register(mux)

	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	return s.srv.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
