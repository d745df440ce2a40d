package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-payx-gateway/challenge"
	"github.com/jrsteele09/go-payx-gateway/internal/config"
	"github.com/jrsteele09/go-payx-gateway/internal/metrics"
	"github.com/jrsteele09/go-payx-gateway/internal/transport"
	"github.com/jrsteele09/go-payx-gateway/payerauth"
	"github.com/jrsteele09/go-payx-gateway/secondscreen"
	"github.com/jrsteele09/go-payx-gateway/server"
	"github.com/jrsteele09/go-payx-gateway/sessionstore"
	"github.com/jrsteele09/go-payx-gateway/signature"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gateway",
		Long: `Start the HTTP gateway. Settings come from the --config YAML file and the flags
below; environment variables override both.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("port", "8080", "listen port")
	cmd.Flags().String("env", "DEV", "environment (DEV logs routes and requests)")

	return cmd
}

func run(ctx context.Context, cfg config.Config) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	configureLogging(cfg.GetEnv())
	displayAppname(cfg.GetAppName())

	handler, err := buildServer(ctx, cfg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- listenAndServe(srv)
	}()

	if err := waitForStopSignal(serveErr); err != nil {
		return err
	}
	return shutdown(srv)
}

// buildServer wires the accessors, handlers and HTTP server from configuration.
func buildServer(ctx context.Context, cfg config.Config) (*server.Server, error) {
	registry, recorder := metrics.NewRegistry()

	keyring, err := signature.NewKeyring(cfg.GetSigningKeys(), cfg.GetActiveSigningKeyID(),
		signature.WithDefaultAlgorithm(cfg.GetSigningAlgorithm()),
		signature.WithKeyAlgorithms(cfg.GetSigningKeyAlgorithms()),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[buildServer] signing keys")
	}
	guard, err := signature.NewGuard(keyring)
	if err != nil {
		return nil, errors.Wrap(err, "[buildServer] signature guard")
	}

	httpClient := transport.NewHTTPClient(ctx, cfg.GetServiceCredentials(), cfg.GetAccessorTimeout())
	accessorOptions := []transport.ClientOption{
		transport.WithHTTPClient(httpClient),
		transport.WithMetrics(recorder),
	}

	store, err := sessionstore.NewClient(cfg.GetSessionServiceURL(), cfg.GetSessionServiceAPIVersion(), accessorOptions...)
	if err != nil {
		return nil, errors.Wrap(err, "[buildServer] session store client")
	}
	payerAuth, err := payerauth.NewClient(cfg.GetPayerAuthURL(), cfg.GetPayerAuthAPIVersion(), accessorOptions...)
	if err != nil {
		return nil, errors.Wrap(err, "[buildServer] payer auth client")
	}

	payments, err := challenge.NewPaymentSessionsHandler(store, payerAuth, guard,
		challenge.WithLogger(log.Logger),
		challenge.WithMetrics(recorder),
		challenge.WithPifdBaseURL(cfg.GetPifdBaseURL()),
	)
	if err != nil {
		return nil, err
	}
	secondScreen, err := secondscreen.NewSecondScreenSessionHandler(store, guard,
		secondscreen.WithLogger(log.Logger),
		secondscreen.WithMetrics(recorder),
	)
	if err != nil {
		return nil, err
	}

	options := []server.Option{
		server.WithLogger(log.Logger),
		server.WithGatherer(registry),
	}
	if issuer := cfg.GetOIDCIssuer(); issuer != "" {
		verifier, err := server.NewTokenVerifier(ctx, issuer, cfg.GetOIDCAudience())
		if err != nil {
			return nil, err
		}
		options = append(options, server.WithTokenVerifier(verifier))
	}

	return server.New(cfg, payments, secondScreen, options...)
}

func configureLogging(env string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if env == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "server.ListenAndServe")
	}
	return nil
}

// waitForStopSignal blocks until SIGINT/SIGTERM or until the listener fails.
func waitForStopSignal(serveErr <-chan error) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		return nil
	case err := <-serveErr:
		return err
	}
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server.Shutdown")
	}
	log.Info().Msg("server stopped")
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
