package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/0xAtelerix/tokenledger/ledger"
	"github.com/0xAtelerix/tokenledger/ledger/eventsource"
	"github.com/0xAtelerix/tokenledger/ledger/rpc"
)

func main() {
	verify := flag.Bool("verify", false, "audit holder invariants and supply conservation, then exit")
	flag.Parse()

	cfg, err := ledger.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = logger.WithContext(ctx)

	if *verify {
		err = runVerify(ctx, cfg)
	} else {
		err = run(ctx, cfg)
	}

	stop()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("Ledger stopped")
		os.Exit(1)
	}
}

func newLogger(cfg ledger.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	if cfg.LogJSON {
		out = os.Stderr
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	return log.Logger
}

func run(ctx context.Context, cfg ledger.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := log.Ctx(ctx)

	db, err := ledger.OpenDB(ctx, cfg.DBPath())
	if err != nil {
		return err
	}
	defer db.Close()

	token, err := cfg.Token()
	if err != nil {
		return err
	}

	decode, err := eventsource.DecoderFor(cfg.EventsFormat, token)
	if err != nil {
		return err
	}

	pos, err := ledger.LoadStreamPosition(ctx, db)
	if err != nil {
		return err
	}

	src, err := eventsource.NewFileSource(cfg.EventsFile, pos, decode)
	if err != nil {
		return err
	}
	defer src.Close()

	src.SetPollInterval(cfg.PollInterval)

	engine, err := ledger.NewEngine(db)
	if err != nil {
		return err
	}

	logger.Info().
		Str("events", cfg.EventsFile).
		Str("format", cfg.EventsFormat).
		Int64("position", pos).
		Msg("Resuming event stream")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ledger.NewRunner(engine, src, ledger.WithMaxRetries(cfg.MaxRetries)).Run(gctx)
	})

	g.Go(func() error {
		return rpc.NewServer(db, logger).StartHTTPServer(gctx, cfg.RPCPort)
	})

	if cfg.PrometheusPort != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.PrometheusPort)
		})
	}

	return g.Wait()
}

func runVerify(ctx context.Context, cfg ledger.Config) error {
	db, err := ledger.OpenDB(ctx, cfg.DBPath())
	if err != nil {
		return err
	}
	defer db.Close()

	report, err := ledger.Verify(ctx, db)
	if err != nil {
		return err
	}

	log.Ctx(ctx).Info().
		Uint64("holders", report.Holders).
		Str("balances", report.TotalBalance.Dec()).
		Str("minted", report.Supply.Minted.Dec()).
		Str("burned", report.Supply.Burned.Dec()).
		Int("violations", len(report.Violations)).
		Msg("Ledger verified")

	return report.Err()
}

func serveMetrics(ctx context.Context, port string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              ":" + strings.TrimPrefix(port, ":"),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}()

	log.Ctx(ctx).Info().Str("addr", server.Addr).Msg("Serving metrics")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
