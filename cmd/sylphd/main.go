package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"sylph/internal/api"
	"sylph/internal/auth"
	"sylph/internal/guidance"
	"sylph/internal/offload"
	"sylph/internal/platform/config"
	"sylph/internal/platform/otel"
	"sylph/internal/restless"
	"sylph/internal/session"
	"sylph/internal/store"
	"sylph/internal/tier"
	"sylph/internal/vision"
	"sylph/internal/ws"
)

// serverConfig is populated from the environment. Command line flags
// override individual fields after parsing.
type serverConfig struct {
	HTTPAddr           string        `env:"SYLPH_HTTP_ADDR" envDefault:":8080"`
	DBPath             string        `env:"SYLPH_DB_PATH" envDefault:"sylph.db"`
	PoseRuntimeAddr    string        `env:"SYLPH_POSE_RUNTIME_ADDR"`
	GuidanceLangs      []string      `env:"SYLPH_GUIDANCE_LANGS" envSeparator:"," envDefault:"en"`
	OptionsPreset      string        `env:"SYLPH_OPTIONS_PRESET"`
	CalibrationProfile string        `env:"SYLPH_CALIBRATION_PROFILE"`
	OffloadWorkers     int           `env:"SYLPH_OFFLOAD_WORKERS"`
	MaxSessions        int           `env:"SYLPH_MAX_SESSIONS" envDefault:"10"`
	SessionIdleTimeout time.Duration `env:"SYLPH_SESSION_IDLE_TIMEOUT" envDefault:"5m"`
	SessionMaxAge      time.Duration `env:"SYLPH_SESSION_MAX_AGE" envDefault:"1h"`
	AuthEnabled        bool          `env:"SYLPH_AUTH_ENABLED"`
	AuthUsername       string        `env:"SYLPH_AUTH_USERNAME"`
	AuthPassword       string        `env:"SYLPH_AUTH_PASSWORD"`
	JWTSecret          string        `env:"SYLPH_JWT_SECRET"`
	JWTExpiry          time.Duration `env:"SYLPH_JWT_EXPIRY" envDefault:"24h"`
}

func main() {
	// Parse the environment first so flags can override it.
	var cfg serverConfig
	if err := config.ParseEnv(&cfg); err != nil {
		config.Exitf("Error: %v", err)
	}

	// Define command line flags, add any other flag required to configure the
	// service.
	var (
		httpAddrF = flag.String("http-addr", cfg.HTTPAddr, "HTTP listen address")
		tierF     = flag.String("tier", "", "Starting tier for new sessions (basic, standard or premium)")
		dbgF      = flag.Bool("debug", false, "Log request and response bodies")
	)
	flag.Parse()
	cfg.HTTPAddr = *httpAddrF

	// Setup logger. Replace logger with your own log package of choice.
	var (
		logger *log.Logger
	)
	{
		logger = log.New(os.Stderr, "[sylph] ", log.Ltime)
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Tracing is a no-op unless an OTLP endpoint is configured.
	shutdownTracing, err := otel.Setup(ctx, "sylphd")
	if err != nil {
		config.Exitf("setup tracing: %v", err)
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		config.Exitf("open store: %v", err)
	}
	if err := st.Migrate(); err != nil {
		config.Exitf("migrate store: %v", err)
	}

	coach, err := guidance.NewCoach(cfg.GuidanceLangs...)
	if err != nil {
		config.Exitf("load guidance catalogs: %v", err)
	}

	// Session options start from the defaults, then a stored preset, then
	// the tier flag. Later layers win.
	base := vision.DefaultOptions()
	if cfg.OptionsPreset != "" {
		preset, err := st.GetPreset(cfg.OptionsPreset)
		if err != nil {
			config.Exitf("load preset %q: %v", cfg.OptionsPreset, err)
		}
		if preset == nil {
			logger.Printf("preset %q not found, using default options", cfg.OptionsPreset)
		} else {
			base = preset.Options
		}
	}
	if *tierF != "" {
		t, err := tier.Parse(*tierF)
		if err != nil {
			config.Exitf("Error: %v", err)
		}
		base.Tier = t
	}

	calibration := restless.DefaultCalibration()
	if cfg.CalibrationProfile != "" {
		profile, err := st.GetCalibration(cfg.CalibrationProfile)
		if err != nil {
			config.Exitf("load calibration %q: %v", cfg.CalibrationProfile, err)
		}
		if profile == nil {
			logger.Printf("calibration profile %q not found, using defaults", cfg.CalibrationProfile)
		} else {
			calibration = profile.Calibration()
		}
	}

	poseAvailable := tier.ProbePose(ctx, cfg.PoseRuntimeAddr, logger)
	if poseAvailable {
		logger.Printf("pose runtime serving at %s, premium tier available", cfg.PoseRuntimeAddr)
	}

	// One dispatcher is shared by every session so the worker count bounds
	// process-wide offload concurrency.
	workers := cfg.OffloadWorkers
	if workers <= 0 {
		workers = vision.DefaultOffloadWorkers()
	}
	dispatcher := offload.NewDispatcher(workers, offload.DefaultTimeout, logger)

	// Initialize the session registry and its collaborators.
	var (
		registry *session.Registry
		authn    *auth.Authenticator
		hub      *ws.Hub
		server   *api.Server
	)
	{
		deps := vision.Deps{
			Dispatcher:    dispatcher,
			Coach:         coach,
			Calibration:   calibration,
			PoseAvailable: poseAvailable,
			Logger:        logger,
		}
		limits := session.Limits{
			MaxConcurrent: cfg.MaxSessions,
			IdleTimeout:   cfg.SessionIdleTimeout,
			MaxAge:        cfg.SessionMaxAge,
		}
		registry = session.NewRegistry(base, deps, limits, logger)
		authn = auth.New(auth.Config{
			Enabled:  cfg.AuthEnabled,
			Username: cfg.AuthUsername,
			Password: cfg.AuthPassword,
			Secret:   cfg.JWTSecret,
			Expiry:   cfg.JWTExpiry,
		})
		hub = ws.NewHub(logger)
		server = api.New(registry, hub, authn, st, logger)
	}

	// Create channel used by both the signal handler and server goroutines
	// to notify the main goroutine when to stop the server.
	errc := make(chan error)

	// Setup interrupt handler. This optional step configures the process so
	// that SIGINT and SIGTERM signals cause the services to stop gracefully.
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	var wg sync.WaitGroup

	// Start the server and send errors (if any) to the error channel.
	handleHTTPServer(ctx, cfg.HTTPAddr, server, registry, hub, &wg, errc, logger, *dbgF)

	// Wait for signal.
	logger.Printf("exiting (%v)", <-errc)

	// Send cancellation signal to the goroutines.
	cancel()

	wg.Wait()

	// Stop what the HTTP server no longer reaches: live sessions first so
	// their final summaries go out, then the shared worker pool and store.
	registry.Close()
	dispatcher.Close()
	if err := st.Close(); err != nil {
		logger.Printf("store close: %v", err)
	}
	{
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Printf("tracing shutdown: %v", err)
		}
		flushCancel()
	}
	logger.Println("exited")
}
