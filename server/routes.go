// routes.go - HTTP-Router der Tracking-API
//
// Dieses Modul enthaelt:
// - Server: Lesezugriff auf den Tracking-Store ueber HTTP
// - GenerateRoutes: Router mit CORS und Host-Pruefung
// - Serve: Startet den Server bis zum Abbruch des Kontexts
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/cortml/cort/envconfig"
	"github.com/cortml/cort/store"
)

// Server beantwortet Anfragen aus dem Store
type Server struct {
	addr  net.Addr
	store *store.Store
}

func New(st *store.Store) *Server {
	return &Server{store: st}
}

// GenerateRoutes erstellt und konfiguriert den HTTP-Router. Ohne origins
// gelten die Defaults aus envconfig.AllowedOrigins.
func (s *Server) GenerateRoutes(origins []string) http.Handler {
	if len(origins) == 0 {
		origins = envconfig.AllowedOrigins()
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
	}
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodHead, http.MethodOptions}
	corsConfig.AllowOrigins = origins

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(
		gin.Recovery(),
		requestLogger(),
		cors.New(corsConfig),
		allowedHostsMiddleware(s.addr),
	)

	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "CoRT tracking is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "CoRT tracking is running") })

	api := r.Group("/api")
	api.GET("/runs", s.ListRunsHandler)
	api.GET("/runs/:id", s.RunHandler)
	api.GET("/runs/:id/scalars", s.ScalarsHandler)
	api.GET("/runs/:id/checkpoints", s.CheckpointsHandler)

	return r
}

// Serve startet den HTTP-Server auf ln und beendet ihn, sobald ctx endet
func Serve(ctx context.Context, ln net.Listener, st *store.Store, origins []string) error {
	s := &Server{addr: ln.Addr(), store: st}

	srvr := &http.Server{
		Handler:           s.GenerateRoutes(origins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srvr.Shutdown(shutdownCtx); err != nil {
			slog.Warn("server shutdown", "error", err)
		}
	}()

	slog.Info(fmt.Sprintf("Listening on %s", ln.Addr()))
	if err := srvr.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// requestLogger schreibt jede Anfrage auf Debug-Level
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("request", "method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status(), "duration", time.Since(start))
	}
}
