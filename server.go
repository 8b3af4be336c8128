package quiestce

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/quiestce/quiestce/directory"
	"github.com/quiestce/quiestce/server"
	"github.com/quiestce/quiestce/storage"
)

// Server is the authorization transaction engine
type Server = server.Server

// ServerConfig configures the engine
type ServerConfig = server.Config

// ClientConfig describes the registered client
type ClientConfig = server.ClientConfig

// NewServer creates the engine. See server.New.
func NewServer(store storage.TransactionStore, dir directory.Source, config *ServerConfig, logger *slog.Logger) (*Server, error) {
	return server.New(store, dir, config, logger)
}

// HTTP server timeouts
const (
	DefaultReadTimeout       = 15 * time.Second
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultWriteTimeout      = 15 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
)

// NewHTTPServer wraps handler in an http.Server with transport timeouts set
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       DefaultReadTimeout,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}
}
