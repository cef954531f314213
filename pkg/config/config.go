package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		HTTP      HTTP      `envPrefix:"HTTP_"`
		Logger    Logger    `envPrefix:"LOGGER_"`
		Telemetry Telemetry `envPrefix:"TELEMETRY_"`
		Cache     Cache     `envPrefix:"CACHE_"`
		Redis     Redis     `envPrefix:"REDIS_"`
		Raster    Raster    `envPrefix:"RASTER_"`
		Elevation Elevation `envPrefix:"ELEVATION_"`
		Overpass  Overpass  `envPrefix:"OVERPASS_"`
	}

	HTTP struct {
		Server  Server        `envPrefix:"SERVER_"`
		Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
	}

	Server struct {
		Port         string        `env:"PORT" envDefault:"8080"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"120s"`
		IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	}

	Logger struct {
		Level  string `env:"LEVEL" envDefault:"info"`
		Format string `env:"FORMAT" envDefault:"console"`
	}

	Telemetry struct {
		Enabled        bool   `env:"ENABLED" envDefault:"false"`
		ServiceName    string `env:"SERVICE_NAME" envDefault:"milmap-tiles"`
		ServiceVersion string `env:"SERVICE_VERSION" envDefault:"1.0.0"`
		Environment    string `env:"ENVIRONMENT" envDefault:"production"`
		OTLPEndpoint   string `env:"OTLP_ENDPOINT" envDefault:"localhost:4317"`
	}

	// Cache holds settings shared by every cached source.
	Cache struct {
		Dir             string        `env:"DIR" envDefault:"./cache"`
		Backend         string        `env:"BACKEND" envDefault:"filesystem"`
		SQLitePath      string        `env:"SQLITE_PATH" envDefault:"./cache/tiles.db"`
		UseStaleOnError bool          `env:"USE_STALE_ON_ERROR" envDefault:"true"`
		CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`
	}

	Redis struct {
		Addr     string        `env:"ADDR" envDefault:"localhost:6379"`
		Password string        `env:"PASSWORD" envDefault:""`
		DB       int           `env:"DB" envDefault:"0"`
		// TTL expires shared entries on the redis side; zero keeps them.
		TTL      time.Duration `env:"TTL" envDefault:"0s"`
	}

	// Fetch configures the resilient fetcher of one remote source.
	Fetch struct {
		Timeout            time.Duration `env:"TIMEOUT" envDefault:"30s"`
		UserAgent          string        `env:"USER_AGENT" envDefault:"MilMap/1.0 (+https://github.com/JonathonClaypool/MilMap)"`
		MaxConcurrency     int           `env:"MAX_CONCURRENCY" envDefault:"2"`
		MaxRetries         int           `env:"MAX_RETRIES" envDefault:"3"`
		InitialRetryDelay  time.Duration `env:"INITIAL_RETRY_DELAY" envDefault:"500ms"`
		MaxRetryDelay      time.Duration `env:"MAX_RETRY_DELAY" envDefault:"10s"`
		MinRequestInterval time.Duration `env:"MIN_REQUEST_INTERVAL" envDefault:"100ms"`
	}

	Raster struct {
		URLTemplate  string        `env:"URL_TEMPLATE" envDefault:"https://tile.openstreetmap.org/{z}/{x}/{y}.png"`
		Extension    string        `env:"EXTENSION" envDefault:"png"`
		MaxTileAge   time.Duration `env:"MAX_TILE_AGE" envDefault:"720h"`
		MaxSizeBytes int64         `env:"MAX_SIZE_BYTES" envDefault:"1073741824"`
		MemoryTiles  int           `env:"MEMORY_TILES" envDefault:"0"`
		Fetch        Fetch         `envPrefix:"FETCH_"`
	}

	Elevation struct {
		URLTemplate  string        `env:"URL_TEMPLATE" envDefault:"https://s3.amazonaws.com/elevation-tiles-prod/skadi/{lat_band}/{name}.hgt.gz"`
		MaxTileAge   time.Duration `env:"MAX_TILE_AGE" envDefault:"0s"`
		MaxSizeBytes int64         `env:"MAX_SIZE_BYTES" envDefault:"4294967296"`
		MemoryTiles  int           `env:"MEMORY_TILES" envDefault:"16"`
		Fetch        Fetch         `envPrefix:"FETCH_"`
	}

	Overpass struct {
		URL   string `env:"URL" envDefault:"https://overpass-api.de/api/interpreter"`
		Fetch Fetch  `envPrefix:"FETCH_"`
	}
)

func New() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Printf("NOTICE: .env file not found or cannot be loaded: %v\n", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
