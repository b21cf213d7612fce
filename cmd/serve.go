package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/vizagent/internal/logging"
	"github.com/KaramelBytes/vizagent/internal/web"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web app",
	Example: `  vizagent serve
  vizagent serve --addr :9000 --debug`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			c.ServerAddr = serveAddr
		}
		log, err := logging.NewLogger(debug)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		srv, err := web.New(web.Options{Config: c, Logger: log})
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		log.Info("starting vizagent", zap.String("addr", c.ServerAddr), zap.String("default_model", c.DefaultModel))
		return srv.Run(ctx, c.ServerAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server_addr)")
}
