package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/radiarr/internal/catalog"
	"github.com/jmylchreest/radiarr/internal/config"
	"github.com/jmylchreest/radiarr/internal/database"
	"github.com/jmylchreest/radiarr/internal/database/migrations"
	"github.com/jmylchreest/radiarr/internal/ffmpeg"
	internalhttp "github.com/jmylchreest/radiarr/internal/http"
	"github.com/jmylchreest/radiarr/internal/http/handlers"
	"github.com/jmylchreest/radiarr/internal/probe"
	"github.com/jmylchreest/radiarr/internal/relay"
	"github.com/jmylchreest/radiarr/internal/repository"
	"github.com/jmylchreest/radiarr/internal/scheduler"
	"github.com/jmylchreest/radiarr/internal/service"
	"github.com/jmylchreest/radiarr/internal/speaker"
	"github.com/jmylchreest/radiarr/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the radiarr server",
	Long: `Start the radiarr HTTP server and API.

The server provides:
- REST API for station search, speaker control, and playback
- Relay stream endpoints speakers pull transcoded audio from
- Health check endpoint
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server flags
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("database", "radiarr.db", "Database DSN (file path for sqlite)")
	serveCmd.Flags().String("advertise-host", "", "Host speakers use to reach relay streams (empty = autodetect)")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("database.dsn", serveCmd.Flags().Lookup("database"))
	mustBindPFlag("server.advertise_host", serveCmd.Flags().Lookup("advertise-host"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	// The global viper already holds defaults, config file, env, and the
	// flags bound above. Unmarshal it into the typed config.
	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	// Initialize database and run migrations
	db, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("closing database", slog.String("error", err.Error()))
		}
	}()

	migrator := migrations.NewMigrator(db.DB, logger)
	migrator.RegisterAll(migrations.AllMigrations())
	if err := migrator.Up(context.Background()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	// Initialize repositories
	verdictRepo := repository.NewProbeVerdictRepository(db.DB)
	journalRepo := repository.NewSessionRecordRepository(db.DB)

	// Detect the transcoder up front so a missing binary is visible at
	// startup rather than on the first incompatible station.
	detector := ffmpeg.NewBinaryDetector()
	if cfg.FFmpeg.BinaryPath != "" {
		detector.WithBinaryPath(cfg.FFmpeg.BinaryPath)
	}
	if info, err := detector.Detect(context.Background()); err != nil {
		logger.Warn("ffmpeg not found; incompatible stations cannot be relayed",
			slog.String("error", err.Error()))
	} else {
		if !info.HasEncoder(ffmpeg.MP3Encoder) {
			logger.Warn("ffmpeg has no MP3 encoder; relay sessions will fail",
				slog.String("path", info.FFmpegPath))
		}
		logger.Info("transcoder detected",
			slog.String("path", info.FFmpegPath),
			slog.String("version", info.Version))
	}

	// Initialize collaborator clients
	catalogClient := catalog.NewClient(
		catalog.WithMirrors(cfg.Catalog.Mirrors),
		catalog.WithTimeout(cfg.Catalog.Timeout),
		catalog.WithDefaultLimit(cfg.Catalog.DefaultLimit),
		catalog.WithLogger(logger),
	)

	staticDevices := make([]speaker.Device, 0, len(cfg.Speakers.Static))
	for _, entry := range cfg.Speakers.Static {
		staticDevices = append(staticDevices, speaker.Device{
			ID:      entry.ID,
			Name:    entry.Name,
			Address: entry.Address,
		})
	}
	speakerClient := speaker.NewClient(
		speaker.WithStaticDevices(staticDevices),
		speaker.WithDiscovery(cfg.Speakers.Discovery),
		speaker.WithDiscoveryTimeout(cfg.Speakers.DiscoveryTimeout),
		speaker.WithLogger(logger),
	)

	baseURL, err := advertiseBaseURL(cfg.Server)
	if err != nil {
		return fmt.Errorf("resolving advertise address: %w", err)
	}
	logger.Info("relay streams advertised at", slog.String("base_url", baseURL))

	// Initialize the playback orchestrator
	relayCfg := relay.DefaultRegistryConfig()
	relayCfg.MaxSessions = cfg.Relay.MaxSessions
	relayCfg.StallGrace = cfg.Relay.StallGrace
	relayCfg.KillGrace = cfg.Relay.KillGrace
	relayCfg.JanitorInterval = cfg.Relay.JanitorInterval
	relayCfg.Bitrate = cfg.FFmpeg.Bitrate
	relayCfg.SampleRate = cfg.FFmpeg.SampleRate
	relayCfg.Detector = detector

	probeCfg := probe.Config{
		Timeout:       cfg.Probe.Timeout,
		MaxSniffBytes: int(cfg.Probe.MaxSniffBytes.Bytes()),
		UserAgent:     cfg.Probe.UserAgent,
		Logger:        logger,
	}

	playbackService := service.NewPlaybackService(
		verdictRepo,
		journalRepo,
		catalogClient,
		speakerClient,
		service.Config{
			BaseURL:      baseURL,
			CacheTTL:     cfg.Probe.CacheTTL,
			StartTimeout: cfg.Relay.StartTimeout,
			Probe:        probeCfg,
			Relay:        relayCfg,
		},
	).WithLogger(logger)
	defer playbackService.Close()

	// Initialize maintenance scheduler
	sched := scheduler.NewScheduler(journalRepo, verdictRepo).
		WithLogger(logger).
		WithConfig(scheduler.Config{
			JournalRetention:    cfg.Scheduler.JournalRetention.Duration(),
			JournalPruneCron:    cfg.Scheduler.JournalPruneCron,
			ProbeCachePruneCron: cfg.Scheduler.ProbeCachePruneCron,
		})
	if err := sched.Start(context.Background()); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	// Initialize HTTP server
	serverConfig := internalhttp.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadTimeout = cfg.Server.ReadTimeout
	serverConfig.WriteTimeout = cfg.Server.WriteTimeout
	serverConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout
	serverConfig.CORSOrigins = cfg.Server.CORSOrigins
	server := internalhttp.NewServer(serverConfig, logger, version.Version)

	// Register handlers
	healthHandler := handlers.NewHealthHandler(version.Version).
		WithDB(db.DB).
		WithPlayback(playbackService).
		WithScheduler(sched).
		WithBreakerStats(catalogClient)
	healthHandler.Register(server.API())

	playbackHandler := handlers.NewPlaybackHandler(playbackService).WithLogger(logger)
	playbackHandler.Register(server.API())

	stationsHandler := handlers.NewStationsHandler(catalogClient).WithLogger(logger)
	stationsHandler.Register(server.API())

	devicesHandler := handlers.NewDevicesHandler(speakerClient)
	devicesHandler.Register(server.API())

	sessionsHandler := handlers.NewSessionsHandler(playbackService)
	sessionsHandler.Register(server.API())

	historyHandler := handlers.NewHistoryHandler(playbackService)
	historyHandler.Register(server.API())

	systemHandler := handlers.NewSystemHandler(detector)
	systemHandler.Register(server.API())

	streamHandler := handlers.NewStreamHandler(playbackService).WithLogger(logger)
	streamHandler.Register(server.API())
	streamHandler.RegisterChiRoutes(server.Router())

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting radiarr server",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.String("version", version.Version),
	)

	return server.ListenAndServe(ctx)
}

// advertiseBaseURL builds the server root speakers fetch relay streams
// from. The bind host is useless for this when it is a wildcard, so an
// unset advertise host falls back to the outbound LAN address.
func advertiseBaseURL(cfg config.ServerConfig) (string, error) {
	host := cfg.AdvertiseHost
	if host == "" {
		switch cfg.Host {
		case "", "0.0.0.0", "::":
			ip, err := outboundIP()
			if err != nil {
				return "", err
			}
			host = ip.String()
		default:
			host = cfg.Host
		}
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Port)), nil
}

// outboundIP reports the local address the default route would use. No
// packets are sent; connecting a UDP socket only resolves the route.
func outboundIP() (net.IP, error) {
	conn, err := net.Dial("udp4", "192.0.2.1:9")
	if err != nil {
		return nil, fmt.Errorf("detecting outbound address: %w", err)
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return nil, fmt.Errorf("unexpected local address type %T", conn.LocalAddr())
	}
	return addr.IP, nil
}
