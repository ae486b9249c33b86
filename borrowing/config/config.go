package config

import (
	"log"
	"sync"
	"time"

	"github.com/Astemirdum/library-borrowing/borrowing/internal/gateway"
	"github.com/Astemirdum/library-borrowing/borrowing/internal/notify"
	"github.com/Astemirdum/library-borrowing/pkg/kafka"
	"github.com/Astemirdum/library-borrowing/pkg/logger"
	"github.com/Astemirdum/library-borrowing/pkg/postgres"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

type HTTPServer struct {
	Host         string        `yaml:"host" envconfig:"HTTP_HOST" default:"0.0.0.0"`
	Port         string        `yaml:"port" envconfig:"HTTP_PORT" default:"8080"`
	ReadTimeout  time.Duration `yaml:"readTimeout" envconfig:"HTTP_READ" default:"10s"`
	WriteTimeout time.Duration `yaml:"writeTimeout" envconfig:"HTTP_WRITE"`
}

type Borrowing struct {
	// HoldTTL bounds how long an unpaid borrowing keeps a copy reserved. Checkout sessions
	// expire with the hold, so it has to stay within the gateway session bounds.
	HoldTTL        time.Duration `envconfig:"HOLD_TTL" default:"24h"`
	DigestInterval time.Duration `envconfig:"DIGEST_INTERVAL" default:"24h"`
}

func (b Borrowing) Validate() error {
	if b.HoldTTL < gateway.MinSessionTTL || b.HoldTTL > gateway.MaxSessionTTL {
		return errors.Errorf("HOLD_TTL %s is out of range [%s, %s]", b.HoldTTL, gateway.MinSessionTTL, gateway.MaxSessionTTL)
	}
	if b.DigestInterval <= 0 {
		return errors.Errorf("DIGEST_INTERVAL %s must be positive", b.DigestInterval)
	}
	return nil
}

type Config struct {
	Server    HTTPServer            `yaml:"server"`
	Database  postgres.DB           `yaml:"db"`
	Kafka     kafka.Config          `yaml:"kafka"`
	Stripe    gateway.Config        `yaml:"stripe"`
	Telegram  notify.TelegramConfig `yaml:"telegram"`
	Borrowing Borrowing             `yaml:"borrowing"`
	Log       logger.Log            `yaml:"log"`
}

var (
	once sync.Once
	cfg  *Config
)

// NewConfig reads config from environment. Values set by options are overridden by the environment.
func NewConfig(ops ...Option) *Config {
	once.Do(func() {
		var config Config
		for _, op := range ops {
			op(&config)
		}
		err := envconfig.Process("", &config)
		if err != nil {
			log.Fatal("NewConfig ", err)
		}
		if err = config.Borrowing.Validate(); err != nil {
			log.Fatal("NewConfig ", err)
		}
		cfg = &config
	})

	return cfg
}
