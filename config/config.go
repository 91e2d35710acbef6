package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"newsletter/pkg/mq"
)

type Config struct {
	MetadataDB  MySQL             `json:"metadata_db"`
	Brevo       Brevo             `json:"brevo"`
	Newsletter  Newsletter        `json:"newsletter"`
	Tracking    Tracking          `json:"tracking"`
	Producer    mq.ProducerConfig `json:"producer"`
	Consumer    mq.ConsumerConfig `json:"consumer"`
	Cors        Cors              `json:"cors"`
	AutoMigrate bool              `json:"auto_migrate"`
}

type Brevo struct {
	APIKey          string `json:"api_key"`
	BaseURL         string `json:"base_url"`
	SenderName      string `json:"sender_name"`
	SenderEmail     string `json:"sender_email"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
	MaxRetries      uint64 `json:"max_retries"`
	RetryIntervalMs int    `json:"retry_interval_ms"`
}

type Newsletter struct {
	ChunkSize           int `json:"chunk_size"`
	RetryChunkSize      int `json:"retry_chunk_size"`
	DispatchConcurrency int `json:"dispatch_concurrency"`
	QueueWorkers        int `json:"queue_workers"`
	QueueSize           int `json:"queue_size"`
	AutoRetryMaxStage   int `json:"auto_retry_max_stage"`
	AutoRetryWorkers    int `json:"auto_retry_workers"`
}

type Tracking struct {
	BaseURL              string `json:"base_url"`
	FingerprintSecret    string `json:"fingerprint_secret"`
	TokenCacheTTLSeconds int    `json:"token_cache_ttl_seconds"`
}

type Cors struct {
	AllowedOrigins []string `json:"allowed_origins"`
}

type MySQL struct {
	Username               string `json:"username"`
	Password               string `json:"password"`
	Host                   string `json:"host"`
	Port                   int    `json:"port"`
	Database               string `json:"database"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

func (mysql *MySQL) ToDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", mysql.Username, mysql.Password, mysql.Host, mysql.Port, mysql.Database)
}

func NewConfig() *Config {
	return &Config{
		MetadataDB: MySQL{
			Username:               "",
			Password:               "",
			Host:                   "127.0.0.1",
			Port:                   3306,
			Database:               "newsletter_db",
			MaxOpenConns:           20,
			MaxIdleConns:           10,
			ConnMaxLifetimeSeconds: 3600,
		},
		Brevo: Brevo{
			APIKey:          "",
			BaseURL:         "https://api.brevo.com/v3",
			SenderName:      "",
			SenderEmail:     "",
			TimeoutSeconds:  10,
			MaxRetries:      3,
			RetryIntervalMs: 500,
		},
		Newsletter: Newsletter{
			ChunkSize:           50,
			RetryChunkSize:      10,
			DispatchConcurrency: 5,
			QueueWorkers:        2,
			QueueSize:           100,
			AutoRetryMaxStage:   3,
			AutoRetryWorkers:    4,
		},
		Tracking: Tracking{
			BaseURL:              "",
			FingerprintSecret:    "",
			TokenCacheTTLSeconds: 1800,
		},
		Cors: Cors{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		AutoMigrate: false,
	}
}

func (c *Config) Load(ctx context.Context, path string) error {
	if path == "" {
		log.Ctx(ctx).Warn().Msgf("empty config file")
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Ctx(ctx).Warn().Msgf("config file does not exist, file path: %s", path)
			return nil
		}
		return err
	}
	defer func(f *os.File) {
		err := f.Close()
		if err != nil {
			log.Ctx(ctx).Error().Msgf("config file close failed, file path: %s", path)
		}
	}(f)

	p := json.NewDecoder(f)
	if err := p.Decode(&c); err != nil {
		return err
	}

	return nil
}
