package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server. Write timeout is generous because ingest of an entity
// with many edges performs one round-trip per edge.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}
}
