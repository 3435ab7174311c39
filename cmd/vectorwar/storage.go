package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/vectorwar/arena/internal/config"
	"github.com/vectorwar/arena/internal/storage"
	"github.com/vectorwar/arena/internal/storage/memory"
	pgstorage "github.com/vectorwar/arena/internal/storage/postgres"
	sqlitestorage "github.com/vectorwar/arena/internal/storage/sqlite"
	wsstorage "github.com/vectorwar/arena/internal/storage/websocket"
	"github.com/vectorwar/arena/internal/worker"
)

func initStorage() error {
	Logger.Debug("Initializing storage")

	storageCfg := config.GetStorageConfig()

	backend, err := createStorageBackend(storageCfg, config.GetDBConfig(), SessionStartTime, Logger)
	if err != nil {
		Logger.Error("Failed to create storage backend", "error", err)
		return err
	}
	storageBackend = backend
	if err := storageBackend.Init(); err != nil {
		Logger.Error("Failed to initialize storage backend", "error", err)
		return err
	}

	apiCfg := config.GetAPIConfig()
	deps := worker.Dependencies{
		Match:         matchContext,
		Checksums:     checksumCache,
		Logger:        Logger,
		UploadDesyncs: apiCfg.UploadDesyncs,
		UploadExports: apiCfg.UploadExports,
	}
	// A nil *influx.Manager must not reach the interface field.
	if influxManager != nil {
		deps.Influx = influxManager
	}
	if apiClient != nil {
		deps.Uploader = apiClient
	}
	workerManager = worker.NewManager(deps, storageBackend)

	Logger.Debug("Registering worker handlers with dispatcher")
	workerManager.RegisterHandlers(eventDispatcher)
	Logger.Info("Storage ready", "type", storageCfg.Type)
	return nil
}

func createStorageBackend(storageCfg config.StorageConfig, dbCfg config.DBConfig, started time.Time, logger *slog.Logger) (storage.Backend, error) {
	switch storageCfg.Type {
	case "postgres":
		logger.Info("Postgres storage backend initialized", "host", dbCfg.Host)
		return pgstorage.New(pgstorage.Config{
			DB:            dbCfg,
			FlushInterval: storageCfg.FlushInterval,
		}, logger), nil

	case "sqlite":
		dumpPath := filepath.Join(storageCfg.SQLite.OutputDir, fmt.Sprintf("%s_%s.db", ExtensionName, started.Format("20060102_150405")))
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval:  storageCfg.SQLite.DumpInterval,
			DumpPath:      dumpPath,
			FlushInterval: storageCfg.FlushInterval,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		logger.Info("SQLite storage backend initialized", "dumpPath", dumpPath)
		return backend, nil

	case "websocket":
		wsURL := wsstorage.HTTPToWS(storageCfg.WebSocket.URL)
		logger.Info("WebSocket storage backend initialized", "url", wsURL)
		return wsstorage.New(wsstorage.Config{
			URL:    wsURL,
			Secret: storageCfg.WebSocket.Secret,
		}, logger), nil

	case "memory", "":
		logger.Info("Memory storage backend initialized", "outputDir", storageCfg.Memory.OutputDir)
		return memory.New(storageCfg.Memory), nil

	default:
		return nil, fmt.Errorf("%w: %q", storage.ErrUnknownBackend, storageCfg.Type)
	}
}
