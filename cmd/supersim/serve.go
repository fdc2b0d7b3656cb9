package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"supersim/internal/api"
	"supersim/internal/archive"
	"supersim/internal/instrdesc"
	"supersim/internal/session"
	"supersim/internal/slogutil"
	"supersim/internal/storage"
	"supersim/internal/tick"
	"supersim/internal/views"
)

var (
	servePort   int
	serveHost   string
	servePreset string
	serveSim    simulationFlags
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP API server",
	Long: `Start the supersim HTTP API server. The server simulates tick 0 on start-up, loads
the instruction descriptions, and exposes the views, tick navigation, diagnostics, CPU
presets and snapshot archives over HTTP. Controller transitions stream over /ws.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default from config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default from config)")
	serveCmd.Flags().StringVar(&servePreset, "preset", "", "Start with a stored CPU preset")
	serveSim.register(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	env, err := setup("serve")
	if err != nil {
		return err
	}
	defer env.Close()
	logger := env.logger

	if servePort != 0 {
		env.cfg.Server.Port = servePort
	}
	if serveHost != "" {
		env.cfg.Server.Host = serveHost
	}
	addr := env.cfg.Server.Addr()

	client, err := env.client()
	if err != nil {
		return err
	}
	simCfg, err := serveSim.load()
	if err != nil {
		return err
	}
	opts, err := env.cfg.Resolver.Options()
	if err != nil {
		return err
	}

	// Storage
	dbPath, err := env.cfg.DatabasePath()
	if err != nil {
		return err
	}
	db, err := storage.Open(dbPath, logger)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	if err := db.SeedDefaultPreset(); err != nil {
		return err
	}
	if servePreset != "" {
		p, err := db.GetPreset(servePreset)
		if err != nil {
			return err
		}
		simCfg.CpuConfig = p.Config
	}

	archiveDir, err := env.cfg.ArchivePath()
	if err != nil {
		return err
	}
	archives, err := archive.Open(archiveDir, logger)
	if err != nil {
		return err
	}

	// Domain
	ctrl := tick.NewController(client, simCfg, logger)
	instr := instrdesc.NewService(client, logger)
	sess := session.New(ctrl, views.NewSelectors(opts), instr, logger)
	defer sess.Close()

	recorder := newHistoryRecorder(db, logger)
	unsubscribe := ctrl.Subscribe(recorder.record)
	defer func() {
		unsubscribe()
		recorder.close()
	}()

	apiLogger, err := env.factory.Logger(slogutil.SubsystemAPI)
	if err != nil {
		return err
	}
	server := api.NewServer(api.Options{
		Addr:      addr,
		Session:   sess,
		Diagnoser: client,
		DB:        db,
		Archives:  archives,
		Logger:    apiLogger,
	})

	ctx, cancel := newContext()
	defer cancel()

	go func() {
		instrErr, simErr := sess.Start(ctx)
		if instrErr == nil && simErr == nil {
			logger.Info("Session started", "tick", ctrl.CurrentTick())
		}
	}()
	go pruneHistory(ctx, db, time.Duration(env.cfg.Storage.HistoryRetentionHours)*time.Hour, logger)

	serverErr := make(chan error, 1)
	go func() {
		fmt.Fprintf(cmd.OutOrStdout(), "supersim API server listening on http://%s\n", addr)
		fmt.Fprintf(cmd.OutOrStdout(), "Simulator backend: %s\n", client.BaseURL())
		fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server error", "error", err.Error())
			return err
		}
	case <-ctx.Done():
		logger.Info("Received shutdown signal")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during shutdown", "error", err.Error())
			return err
		}
		logger.Info("Server stopped gracefully")
	}
	return nil
}

// historyRecorder persists controller transitions off the controller's goroutine.
type historyRecorder struct {
	db     *storage.DB
	logger *slog.Logger
	queue  chan tick.Status
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

func newHistoryRecorder(db *storage.DB, logger *slog.Logger) *historyRecorder {
	r := &historyRecorder{
		db:     db,
		logger: logger,
		queue:  make(chan tick.Status, 256),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// record queues st. A full queue drops the transition.
func (r *historyRecorder) record(st tick.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- st:
	default:
		r.logger.Warn("Tick history queue full, dropping transition", "tick", st.Tick, "state", st.State.String())
	}
}

func (r *historyRecorder) run() {
	defer close(r.done)
	for st := range r.queue {
		if err := r.db.RecordTick(st.Tick, st.Generation, st.State.String(), st.ErrorCode); err != nil {
			r.logger.Warn("Failed to record tick transition", "error", err.Error())
		}
	}
}

func (r *historyRecorder) close() {
	r.mu.Lock()
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	<-r.done
}

// pruneHistory drops transitions older than retention once an hour.
func pruneHistory(ctx context.Context, db *storage.DB, retention time.Duration, logger *slog.Logger) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		if n, err := db.CleanupTickHistory(retention); err != nil {
			logger.Warn("Tick history cleanup failed", "error", err.Error())
		} else if n > 0 {
			logger.Info("Pruned tick history", "rows", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
