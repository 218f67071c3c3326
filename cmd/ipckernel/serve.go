package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/internal/config"
	"github.com/Prajjawalk/ipc/internal/container"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func init() {
	rootCmd.AddCommand(newServeCmd())
}

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve Invoke messages and metrics over HTTP",
		Long: `Serve the host over HTTP.

  POST /invoke?from=<id>&actor=<id>   body: invoke params YAML, response: receipt YAML
  GET  /metrics                       prometheus metrics

Metrics are enabled regardless of the config file.`,
		Example: `  ipckernel serve --listen 127.0.0.1:9464`,
		Args:    cobra.NoArgs,
		RunE: withContainer(func(ctx *CommandContext, _ *cobra.Command, _ []string) error {
			addr := listen
			if addr == "" {
				addr = ctx.Container.Config().Metrics.Listen
			}
			sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(sigCtx, addr, newServeMux(ctx.Container, ctx.Logger), ctx.Logger)
		}, enableMetrics),
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config metrics.listen)")
	cmd.Flags().String("wasm", "", "wasm build of the customsyscall actor (default: native)")
	return cmd
}

func serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() {
		logger.Info("serving", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// invokeHandler applies one Invoke message per request. Requests are
// serialized so each message sees the sender's committed nonce.
type invokeHandler struct {
	c      *container.Container
	logger *slog.Logger
	mu     sync.Mutex
}

func newServeMux(c *container.Container, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST /invoke", &invokeHandler{c: c, logger: logger})
	if m := c.Metrics(); m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}
	return mux
}

func (h *invokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	from, err := actorParam(r, "from", abi.SystemActorID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	actor, err := actorParam(r, "actor", 1000)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	in, err := readInput(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	receipts, err := apply(r.Context(), h.c, &invokeRequest{Input: in, From: from, Actor: actor, GasLimit: DefaultGasLimit}, 1, false)
	h.mu.Unlock()
	if err != nil {
		h.logger.Error("invoke failed", "error", err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	view, err := newReceiptView(receipts[0])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out, err := yaml.Marshal(view)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(out)
}

func actorParam(r *http.Request, name string, def abi.ActorID) (abi.ActorID, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return abi.ActorID(id), nil
}

func enableMetrics(cfg *config.Config) {
	cfg.Metrics.Enabled = true
}
