// Command meetcapd is the meeting-capture daemon: it wires the session
// store, engine, transcription and summary bridges, and the HTTP/
// websocket command surface, then serves until signaled to stop.
//
// Grounded on the teacher's root main.go construction order (config →
// directories → managers → services → server) and on
// _examples/alnah-go-transcript/main.go's cobra root command plus
// signal.NotifyContext/godotenv.Load() shutdown handling, which the
// teacher itself does not use (AIWisper has no CLI framework at all).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"meetcap/engine"
	"meetcap/internal/api"
	"meetcap/internal/config"
	"meetcap/internal/events"
	"meetcap/internal/logging"
	"meetcap/store"
	"meetcap/summarize"
	"meetcap/transcribe"
)

var (
	version = "dev"
	configPath string
)

func main() {
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := &cobra.Command{
		Use:           "meetcapd",
		Short:         "Record, transcribe, and summarize meeting audio",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file (optional)")

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("meetcapd: load config: %w", err)
	}

	if err := logging.Init(cfg.LogLevel, cfg.LogProduction); err != nil {
		return fmt.Errorf("meetcapd: init logging: %w", err)
	}
	defer logging.Sync()

	if err := os.MkdirAll(cfg.MeetingsRoot, 0o755); err != nil {
		return fmt.Errorf("meetcapd: create meetings root: %w", err)
	}

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("meetcapd: open store: %w", err)
	}
	defer st.Close()

	broadcaster := events.NewWebsocketBroadcaster()

	sttTranscriber := transcribe.NewHTTPTranscriber(cfg.SttURL)
	transcriptionBridge := transcribe.New(st, cfg.MeetingsRoot, sttTranscriber, broadcaster)

	llmClient := summarize.NewLLMClient(cfg.OllamaURL, cfg.OllamaModel)
	summaryBridge := summarize.New(st, cfg.MeetingsRoot, llmClient, broadcaster, cfg.SummaryMaxBytes)

	eng := engine.New(st, cfg.MeetingsRoot, broadcaster, transcriptionBridge, cfg.MicDevice, cfg.FinalizeTimeout)

	server := api.New(eng, st, summaryBridge, broadcaster, cfg.MeetingsRoot)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Mux(),
	}

	serveErr := make(chan error, 1)
	go func() {
		logging.Info("meetcapd listening", zap.String("addr", cfg.HTTPAddr))
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logging.Info("meetcapd shutting down")
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("meetcapd: serve: %w", err)
		}
	}

	if interrupted, err := eng.HandleAppShutdown(); err != nil {
		logging.Error("meetcapd: shutdown handling failed", zap.Error(err))
	} else if interrupted {
		logging.Info("meetcapd: interrupted an in-progress recording on shutdown")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.FinalizeTimeout)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}
