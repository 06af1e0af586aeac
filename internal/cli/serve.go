package cli

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/socify/socify_downloader/internal/config"
	"github.com/socify/socify_downloader/internal/http/rest"
	"github.com/socify/socify_downloader/internal/logctx"
	"github.com/socify/socify_downloader/internal/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type ServeOptions struct {
	GlobalOptions

	BindAddress string
}

func DefaultServeOptions() *ServeOptions {
	return &ServeOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdServe() *cobra.Command {
	o := DefaultServeOptions()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local API a UI drives the workflow through.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *ServeOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.BindAddress, "bind-address", "b", o.BindAddress, "Address the API listens on (env WEB_BIND_ADDRESS)")
}

func (o *ServeOptions) Complete(cmd *cobra.Command, args []string) error {
	if err := o.GlobalOptions.Complete(cmd, args); err != nil {
		return err
	}

	if cmd.Flags().Changed("bind-address") {
		o.cfg.Web.BindAddress = o.BindAddress
	}

	return nil
}

func (o *ServeOptions) Run(ctx context.Context, args []string) error {
	cfg := o.Config()
	logger := newLogger(os.Stdout, cfg)
	ctx = logctx.WithLogger(ctx, logger)

	logger.Info("socify starting...", "version", Version, "log_level", cfg.LogLevel)

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.drain(context.WithoutCancel(ctx))

	// =========================================================================
	// Start API Service

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	server := setupServer(ctx, a, cfg)

	go func() {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	}
}

// setupServer prepares the handlers and middleware of the bridge API.
func setupServer(ctx context.Context, a *app, cfg *config.Config) *http.Server {
	bridge := rest.NewBridgeHandler(a.collector, a.orchestrator)

	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(a.telemetry).Middleware)

	r.Handle("/metrics", a.telemetry.Handler())
	r.Mount("/", bridge.Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
