package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/vectorwar/arena/internal/api"
	"github.com/vectorwar/arena/internal/cache"
	"github.com/vectorwar/arena/internal/config"
	"github.com/vectorwar/arena/internal/dispatcher"
	"github.com/vectorwar/arena/internal/influx"
	"github.com/vectorwar/arena/internal/logging"
	"github.com/vectorwar/arena/internal/match"
	"github.com/vectorwar/arena/internal/monitor"
	intOtel "github.com/vectorwar/arena/internal/otel"
	"github.com/vectorwar/arena/internal/storage"
	"github.com/vectorwar/arena/internal/worker"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	ExtensionName string = "vectorwar"
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	LogFilePath string
	LogFile     *os.File

	SessionStartTime time.Time = time.Now()

	matchContext  = match.NewContext()
	checksumCache = cache.NewChecksumCache(cache.DefaultChecksumHistory)

	// Services
	eventDispatcher *dispatcher.Dispatcher
	workerManager   *worker.Manager
	monitorService  *monitor.Service
	influxManager   *influx.Manager
	apiClient       *api.Client
	dispatchLog     zerolog.Logger

	storageBackend storage.Backend
)

func loadConfig() error {
	configDir := os.Getenv("VECTORWAR_CONFIG_DIR")
	if configDir == "" {
		configDir = "."
	}

	viper.SetEnvPrefix("VECTORWAR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	return config.Load(configDir)
}

func openLogFile(logsDir string) {
	LogFilePath = logging.LogFilePath(logsDir, ExtensionName, SessionStartTime)
	if _, err := os.Stat(LogFilePath); err == nil {
		_ = os.Rename(LogFilePath, LogFilePath+".old")
	}

	f, err := os.OpenFile(LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", LogFilePath)
		return
	}
	LogFile = f
}

// setupLogging opens the log file and builds the slog, OTel and GELF outputs.
func setupLogging() {
	SlogManager = logging.NewSlogManager()
	SlogManager.SetContextProvider(matchContext.LogAttrs)
	SlogManager.Setup(nil, viper.GetString("logLevel"), nil)
	Logger = SlogManager.Logger()

	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		Logger.Error("Failed to create logs directory", "error", err, "path", logsDir)
	} else {
		openLogFile(logsDir)
	}

	var logWriter io.Writer
	if LogFile != nil {
		logWriter = LogFile
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		var err error
		OTelProvider, err = intOtel.New(intOtel.FromAppConfig(otelCfg, logWriter))
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
			OTelProvider = nil
		} else {
			Logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
		}
	}

	var extra []slog.Handler
	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := logging.DialGraylog(gl.Address)
		if err != nil {
			Logger.Error("Failed to connect to Graylog", "error", err, "address", gl.Address)
		} else {
			extra = append(extra, logging.NewGELFHandler(w, viper.GetString("logLevel")))
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	SlogManager.Setup(logWriter, viper.GetString("logLevel"), otelLogProvider, extra...)
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", LogFilePath, "version", CurrentVersion, "buildDate", BuildDate)

	if logWriter == nil {
		logWriter = os.Stderr
	}
	dispatchLog = logging.NewZerolog(logWriter, viper.GetString("logLevel"))
}

func setupInflux(ctx context.Context) {
	cfg := config.GetInfluxConfig()
	if !cfg.Enabled {
		return
	}
	backup := filepath.Join(viper.GetString("logsDir"), fmt.Sprintf("influx_backup_%s.log.gz", SessionStartTime.Format("20060102_150405")))
	m := influx.NewManager(cfg, dispatchLog.With().Str("component", "influx").Logger(), backup)
	if err := m.Connect(ctx); err != nil {
		Logger.Error("Failed to set up InfluxDB", "error", err)
		return
	}
	influxManager = m
}

func setupAPI() {
	cfg := config.GetAPIConfig()
	if !(cfg.UploadDesyncs || cfg.UploadExports) || cfg.ServerURL == "" {
		return
	}
	c := api.New(cfg.ServerURL, cfg.APIKey)
	if err := c.Healthcheck(); err != nil {
		Logger.Warn("Collector unreachable, reports will not be uploaded", "error", err, "url", cfg.ServerURL)
		return
	}
	apiClient = c
}

// setup brings up everything a subcommand that runs a session needs.
func setup(ctx context.Context) error {
	var err error
	eventDispatcher, err = dispatcher.New(logging.NewDispatcherLogger(dispatchLog))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	setupInflux(ctx)
	setupAPI()

	if err := initStorage(); err != nil {
		return err
	}

	monitorService = monitor.NewService(monitor.Dependencies{
		Worker:     workerManager,
		Dispatcher: eventDispatcher,
		Backend:    storageBackend,
		Logger:     Logger,
		StatusDir:  viper.GetString("logsDir"),
	})
	return monitorService.Start()
}

func teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if monitorService != nil {
		monitorService.Stop()
	}
	if eventDispatcher != nil {
		if err := eventDispatcher.Close(ctx); err != nil {
			Logger.Error("Failed to drain dispatcher", "error", err)
		}
	}
	if storageBackend != nil {
		if err := storageBackend.Close(); err != nil {
			Logger.Error("Failed to close storage backend", "error", err)
		}
	}
	if influxManager != nil {
		if err := influxManager.Close(); err != nil {
			Logger.Error("Failed to close InfluxDB manager", "error", err)
		}
	}
	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to flush logs: %v\n", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to shut down OTel: %v\n", err)
		}
	}
	if LogFile != nil {
		_ = LogFile.Close()
	}
}

func main() {
	if err := loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config, using defaults: %v\n", err)
	}
	setupLogging()

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	code := run(context.Background(), strings.ToLower(args[0]), args[1:])
	teardown()
	os.Exit(code)
}
