package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "vectorwar.cfg.json"

// ArenaConfig holds the simulated viewport and participant count.
type ArenaConfig struct {
	Width    int `json:"width" mapstructure:"width"`
	Height   int `json:"height" mapstructure:"height"`
	Players  int `json:"players" mapstructure:"players"`
	PoolSize int `json:"poolSize" mapstructure:"poolSize"`
}

// SyncTestConfig holds settings for the local rollback consistency check.
type SyncTestConfig struct {
	Frames        int    `json:"frames" mapstructure:"frames"`
	CheckDistance int    `json:"checkDistance" mapstructure:"checkDistance"`
	Seed          uint64 `json:"seed" mapstructure:"seed"`
	DumpDir       string `json:"dumpDir" mapstructure:"dumpDir"`
	// DisconnectRate is the per-frame chance, in percent, that a participant
	// is reported disconnected.
	DisconnectRate int `json:"disconnectRate" mapstructure:"disconnectRate"`
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds settings for the in-memory SQLite backend.
type SQLiteConfig struct {
	OutputDir    string        `json:"outputDir" mapstructure:"outputDir"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// WebSocketConfig holds settings for the streaming backend.
type WebSocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// StorageConfig selects and configures the archive backend.
type StorageConfig struct {
	Type string `json:"type" mapstructure:"type"`
	// ArchiveEvery archives a snapshot every N frames; 0 disables snapshots.
	ArchiveEvery  int             `json:"archiveEvery" mapstructure:"archiveEvery"`
	FlushInterval time.Duration   `json:"flushInterval" mapstructure:"flushInterval"`
	Memory        MemoryConfig    `json:"memory" mapstructure:"memory"`
	SQLite        SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	WebSocket     WebSocketConfig `json:"websocket" mapstructure:"websocket"`
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// DSN renders the connection string understood by the postgres driver.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.Username, c.Password, c.Database)
}

// InfluxConfig holds InfluxDB settings.
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
}

// URL returns the server address.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// GraylogConfig holds GELF output settings.
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// APIConfig holds the desync report collector settings.
type APIConfig struct {
	ServerURL     string `json:"serverUrl" mapstructure:"serverUrl"`
	APIKey        string `json:"apiKey" mapstructure:"apiKey"`
	UploadDesyncs bool   `json:"uploadDesyncs" mapstructure:"uploadDesyncs"`
	UploadExports bool   `json:"uploadExports" mapstructure:"uploadExports"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// SetDefaults registers every default value. Load calls it; tools that run
// without a config file call it directly.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./vwlogs")

	viper.SetDefault("arena.width", 640)
	viper.SetDefault("arena.height", 480)
	viper.SetDefault("arena.players", 2)
	viper.SetDefault("arena.poolSize", 16)

	viper.SetDefault("synctest.frames", 600)
	viper.SetDefault("synctest.checkDistance", 7)
	viper.SetDefault("synctest.seed", 1)
	viper.SetDefault("synctest.dumpDir", "./desyncs")
	viper.SetDefault("synctest.disconnectRate", 2)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.archiveEvery", 60)
	viper.SetDefault("storage.flushInterval", "2s")
	viper.SetDefault("storage.memory.outputDir", "./sessions")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.outputDir", "./sessions")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.websocket.url", "ws://localhost:5000/ingest")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "vectorwar")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "vectorwar")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "vectorwar")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")
	viper.SetDefault("api.uploadDesyncs", false)
	viper.SetDefault("api.uploadExports", false)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetArenaConfig returns the arena settings.
func GetArenaConfig() ArenaConfig {
	return ArenaConfig{
		Width:    viper.GetInt("arena.width"),
		Height:   viper.GetInt("arena.height"),
		Players:  viper.GetInt("arena.players"),
		PoolSize: viper.GetInt("arena.poolSize"),
	}
}

// GetSyncTestConfig returns the sync test settings.
func GetSyncTestConfig() SyncTestConfig {
	return SyncTestConfig{
		Frames:         viper.GetInt("synctest.frames"),
		CheckDistance:  viper.GetInt("synctest.checkDistance"),
		Seed:           viper.GetUint64("synctest.seed"),
		DumpDir:        viper.GetString("synctest.dumpDir"),
		DisconnectRate: viper.GetInt("synctest.disconnectRate"),
	}
}

// GetStorageConfig returns the archive backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:          viper.GetString("storage.type"),
		ArchiveEvery:  viper.GetInt("storage.archiveEvery"),
		FlushInterval: viper.GetDuration("storage.flushInterval"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			OutputDir:    viper.GetString("storage.sqlite.outputDir"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
	}
}

// GetDBConfig returns the PostgreSQL settings.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
	}
}

// GetGraylogConfig returns the GELF settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetAPIConfig returns the desync collector settings.
func GetAPIConfig() APIConfig {
	return APIConfig{
		ServerURL:     viper.GetString("api.serverUrl"),
		APIKey:        viper.GetString("api.apiKey"),
		UploadDesyncs: viper.GetBool("api.uploadDesyncs"),
		UploadExports: viper.GetBool("api.uploadExports"),
	}
}
