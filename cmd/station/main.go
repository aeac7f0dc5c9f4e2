// Command jump-station runs a jump testing station: it reads the contact
// mat, scores tests, stores results and serves the operator API.
//
//	jump-station [flags]
//	jump-station migrate <up|down|status|force N>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/banshee-data/jump.report/internal/api"
	"github.com/banshee-data/jump.report/internal/config"
	"github.com/banshee-data/jump.report/internal/db"
	"github.com/banshee-data/jump.report/internal/monitoring"
	"github.com/banshee-data/jump.report/internal/serialmux"
	"github.com/banshee-data/jump.report/internal/station"
	"github.com/banshee-data/jump.report/internal/timeutil"
	"github.com/banshee-data/jump.report/internal/version"
)

// flags are registered by registerFlags after .env is loaded, so JUMP_*
// variables can supply their defaults.
var (
	configPath  *string
	dbPath      *string
	listen      *string
	port        *string
	devMode     *bool
	disableMat  *bool
	fixture     *string
	logLevel    *string
	pretty      *bool
	origins     *string
	showVersion *bool
)

func registerFlags(fs *flag.FlagSet) {
	configPath = fs.String("config", config.Env("CONFIG", config.DefaultConfigPath), "Station config file")
	dbPath = fs.String("db", config.Env("DB", "jump_results.db"), "SQLite database path")
	listen = fs.String("listen", config.Env("LISTEN", ":8080"), "Listen address")
	port = fs.String("port", config.Env("PORT", ""), "Serial port (overrides the config file; ignored in dev mode)")
	devMode = fs.Bool("dev", config.EnvBool("DEV", false), "Replay a fixture instead of opening the serial port")
	disableMat = fs.Bool("disable-mat", config.EnvBool("DISABLE_MAT", false), "Run without a contact mat")
	fixture = fs.String("fixture", config.Env("FIXTURE", "fixtures/cmj.txt"), "Fixture replayed in dev mode")
	logLevel = fs.String("log-level", config.Env("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	pretty = fs.Bool("pretty", config.EnvBool("LOG_PRETTY", false), "Human readable console logs")
	origins = fs.String("allowed-origins", config.Env("ALLOWED_ORIGINS", ""), "Comma-separated CORS origins (empty allows any)")
	showVersion = fs.Bool("version", false, "Print version and exit")
}

func main() {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}
	registerFlags(flag.CommandLine)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get())
		return
	}

	log := monitoring.New(monitoring.Config{Level: *logLevel, Pretty: *pretty})
	monitoring.SetLogger(log)

	if flag.NArg() > 0 && flag.Arg(0) == "migrate" {
		if err := db.RunMigrateCommand(flag.Args()[1:], *dbPath, os.Stdout); err != nil {
			log.Error().Err(err).Msg("migrate")
			os.Exit(1)
		}
		return
	}
	if flag.NArg() > 0 {
		log.Fatal().Str("command", flag.Arg(0)).Msg("unknown command")
	}

	if err := run(log); err != nil {
		log.Fatal().Err(err).Msg("station stopped")
	}
	log.Info().Msg("graceful shutdown complete")
}

func run(log zerolog.Logger) error {
	cfg, err := config.LoadStationConfig(*configPath)
	if err != nil {
		return err
	}

	mat, err := openMat(cfg, log)
	if err != nil {
		return err
	}
	defer mat.Close()

	results, err := db.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer results.Close()

	st, err := station.New(station.Options{
		Config:       cfg.SessionConfig(),
		Roster:       cfg.GetRoster(),
		Store:        results,
		Sensor:       mat,
		StallTimeout: cfg.GetStallTimeout(),
	})
	if err != nil {
		return fmt.Errorf("failed to start station: %w", err)
	}

	if err := mat.Initialise(); err != nil {
		return fmt.Errorf("failed to initialise contact mat: %w", err)
	}
	log.Info().Str("version", version.Version).Str("test_type", string(cfg.GetTestType())).Msg("station ready")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	goRoutine := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Str("routine", name).Msg("routine failed")
			}
			log.Debug().Str("routine", name).Msg("routine terminated")
		}()
	}

	goRoutine("monitor", mat.Monitor)
	goRoutine("station", func(ctx context.Context) error { return st.Run(ctx, mat) })
	goRoutine("watchdog", st.Watch)

	mux := http.NewServeMux()
	mat.AttachAdminRoutes(mux)
	if err := results.AttachAdminRoutes(mux); err != nil {
		return err
	}
	mux.Handle("/api/", api.NewServer(api.Config{
		Station:        st,
		Results:        results,
		AllowedOrigins: splitList(*origins),
	}).Handler())

	server := &http.Server{
		Addr:              *listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", *listen).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("http server: %w", err)
		}
	}

	log.Info().Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown error")
		if err := server.Close(); err != nil {
			log.Warn().Err(err).Msg("http server force close error")
		}
	}

	wg.Wait()
	return nil
}

// openMat picks the line source: the real port, a fixture replay in dev
// mode, or nothing at all.
func openMat(cfg *config.StationConfig, log zerolog.Logger) (serialmux.SerialMuxInterface, error) {
	switch {
	case *disableMat:
		log.Warn().Msg("contact mat disabled")
		return serialmux.NewDisabledSerialMux(), nil
	case *devMode:
		data, err := os.ReadFile(*fixture)
		if err != nil {
			return nil, fmt.Errorf("failed to read fixture: %w", err)
		}
		log.Info().Str("fixture", *fixture).Dur("delay", cfg.GetReplayDelay()).Msg("replaying fixture")
		return serialmux.NewReplaySerialMux(data, cfg.GetReplayDelay(), timeutil.RealClock{}), nil
	}

	path := cfg.GetSerialPort()
	if *port != "" {
		path = *port
	}
	mat, err := serialmux.NewRealSerialMux(path, cfg.GetPortOptions())
	if err != nil {
		if ports, lerr := serialmux.ListPorts(); lerr == nil {
			log.Info().Strs("available", ports).Msg("serial ports")
		}
		return nil, fmt.Errorf("failed to open contact mat: %w", err)
	}
	log.Info().Str("port", path).Msg("contact mat connected")
	return mat, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
