package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"docingest/internal/metrics"
	"docingest/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept document uploads over HTTP",
	Long: `Start an HTTP server that ingests multipart uploads.

  POST /v1/documents            file, user_id, category, title
  GET  /v1/documents            stored documents (bolt backend)
  GET  /v1/documents/{id}/chunks
  GET  /healthz
  GET  /metrics`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	st, err := openStore(cfg, GetRootDir())
	if err != nil {
		return err
	}
	defer st.close()

	m := metrics.New()
	ingestUC, err := newIngestUseCase(cfg, st.writer, m)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(server.Config{
		Addr:         addr,
		MaxFileBytes: cfg.Ingest.MaxFileBytes,
	}, ingestUC, st.reader, m.Registry(), log)
	return srv.ListenAndServe(ctx)
}
