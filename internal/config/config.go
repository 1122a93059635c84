// Package config loads the courier CLI configuration from YAML.
package config

import (
	"time"

	"github.com/adamwoolhether/courier/client/redirect"
	"github.com/adamwoolhether/courier/client/throttle"
	"github.com/adamwoolhether/courier/client/transport"
)

// Config is the root of the configuration file.
type Config struct {
	Client Client `yaml:"client"`
	Server Server `yaml:"server"`
	Log    Log    `yaml:"log"`
}

// Client configures the client used by get, post, download and bench.
type Client struct {
	Redirect       redirect.Policy   `yaml:"redirect" validate:"oneof=0 1 2"`
	MaxRedirects   int               `yaml:"max_redirects" validate:"gte=1,lte=100"`
	ConnectTimeout time.Duration     `yaml:"connect_timeout" validate:"gt=0"`
	Timeout        time.Duration     `yaml:"timeout" validate:"gte=0"`
	Version        transport.Version `yaml:"version" validate:"oneof=1 2"`
	H2C            bool              `yaml:"h2c"`
	Insecure       bool              `yaml:"insecure_skip_verify"`
	UserAgent      string            `yaml:"user_agent"`
	RequestID      bool              `yaml:"request_id"`
	Workers        int               `yaml:"workers" validate:"gte=0,lte=1024"`
	Throttle       *throttle.Config  `yaml:"throttle,omitempty" validate:"omitempty"`
	Auth           *Auth             `yaml:"auth,omitempty" validate:"omitempty"`
}

// Auth holds the Basic credentials offered on a 401.
type Auth struct {
	Username string `yaml:"username" validate:"required"`
	Password string `yaml:"password"`
}

// Server configures `courier serve`.
type Server struct {
	Addr            string        `yaml:"addr" validate:"required,hostname_port"`
	H2C             bool          `yaml:"h2c"`
	MaxDelay        time.Duration `yaml:"max_delay" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	TLSCert         string        `yaml:"tls_cert" validate:"required_with=TLSKey,omitempty,file"`
	TLSKey          string        `yaml:"tls_key" validate:"required_with=TLSCert,omitempty,file"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Client: Client{
			Redirect:       redirect.Normal,
			MaxRedirects:   redirect.DefaultMaxHops,
			ConnectTimeout: transport.DefaultConnectTimeout,
			Timeout:        240 * time.Second,
			Version:        transport.HTTP2,
			UserAgent:      "courier/1.0",
		},
		Server: Server{
			Addr:            "127.0.0.1:8080",
			MaxDelay:        10 * time.Second,
			ShutdownTimeout: 20 * time.Second,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}
