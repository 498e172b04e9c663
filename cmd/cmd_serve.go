// cmd_serve.go - Serve Command Handler
// Hauptfunktionen: RunServer
package cmd

import (
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cortml/cort/envconfig"
	"github.com/cortml/cort/server"
	"github.com/cortml/cort/store"
)

// RunServer - Startet die Tracking-API
func RunServer(cmd *cobra.Command, _ []string) error {
	ln, err := net.Listen("tcp", envconfig.Host().Host)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := &store.Store{}
	defer st.Close()

	return server.Serve(ctx, ln, st, envconfig.AllowedOrigins())
}
