package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string `yaml:"env" env:"ENV" env-default:"local"`
	HTTPServer `yaml:"http_server"`
	Postgres   `yaml:"postgres"`
	Tokens     `yaml:"tokens"`
	WebAuthn   `yaml:"webauthn"`
	RabbitMQ   `yaml:"rabbitmq"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

type Postgres struct {
	Host     string `yaml:"host" env-default:"postgres"`
	Port     int    `yaml:"port" env-default:"5432"`
	User     string `yaml:"user" env-required:"true"`
	Password string `yaml:"password" env-required:"true"`
	DBName   string `yaml:"dbname" env-required:"true"`
	SSLMode  string `yaml:"sslmode" env-default:"disable"`
}

type Tokens struct {
	Secret               string        `yaml:"secret" env:"JWT_SECRET" env-required:"true"`
	Algorithm            string        `yaml:"algorithm" env-default:"HS256"`
	AccessTokenTTL       time.Duration `yaml:"access_token_ttl" env-default:"15m"`
	RefreshTokenTTL      time.Duration `yaml:"refresh_token_ttl" env-default:"168h"`
	VerificationTokenTTL time.Duration `yaml:"verification_token_ttl" env-default:"24h"`
	BcryptCost           int           `yaml:"bcrypt_cost" env-default:"12"`
}

type WebAuthn struct {
	RPID         string        `yaml:"rp_id" env:"WEBAUTHN_RP_ID" env-default:"localhost"`
	RPName       string        `yaml:"rp_name" env:"WEBAUTHN_RP_NAME" env-default:"LanguageLearn"`
	RPOrigin     string        `yaml:"rp_origin" env:"WEBAUTHN_RP_ORIGIN" env-default:"http://localhost:5173"`
	ChallengeTTL time.Duration `yaml:"challenge_ttl" env-default:"5m"`

	// AllowedOrigins is the CSRF allow-list. Empty means "RP origin only".
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type RabbitMQ struct {
	URL       string `yaml:"url" env:"RABBITMQ_URL"`
	QueueName string `yaml:"queue_name" env-default:"verification_emails"`
}

func MustLoad(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("Config file does not exist" + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("Failed to read config" + err.Error())
	}

	if len(cfg.WebAuthn.AllowedOrigins) == 0 {
		cfg.WebAuthn.AllowedOrigins = []string{cfg.WebAuthn.RPOrigin}
	}

	return &cfg
}
