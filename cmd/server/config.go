package main

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/goliatone/go-userflow"
)

// Config contains server configuration parameters.
type Config struct {
	Port     string `env:"PORT" envDefault:"3000"`
	BaseURL  string `env:"BASE_URL" envDefault:"http://localhost:3000"`
	Debug    bool   `env:"DEBUG" envDefault:"false"`
	Database DB     `envPrefix:"DATABASE_"`
	Auth     Auth   `envPrefix:"AUTH_"`
	SMTP     SMTP   `envPrefix:"SMTP_"`
}

// DB contains database connection parameters.
type DB struct {
	DSN string `env:"DSN" envDefault:"file:userflow.db?cache=shared&_fk=1"`
}

// Auth contains token signing and session parameters.
type Auth struct {
	SigningKey            string `env:"SIGNING_KEY" envDefault:"devsecret"`
	ContextKey            string `env:"CONTEXT_KEY" envDefault:"token"`
	TokenExpiration       int    `env:"TOKEN_EXPIRATION_HOURS" envDefault:"168"`
	ExtendedTokenDuration int    `env:"EXTENDED_TOKEN_HOURS" envDefault:"720"`
	VerifyTokenExpiration int    `env:"VERIFY_TOKEN_HOURS" envDefault:"24"`
	ResetTokenExpiration  int    `env:"RESET_TOKEN_HOURS" envDefault:"1"`
	TokenLookup           string `env:"TOKEN_LOOKUP" envDefault:"cookie:token,header:Authorization"`
	AuthScheme            string `env:"AUTH_SCHEME" envDefault:"Bearer"`
	Issuer                string `env:"ISSUER" envDefault:"userflow"`
}

// SMTP contains mail delivery parameters.
type SMTP struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USER"`
	Password string `env:"PASS"`
	From     string `env:"FROM"`
	AppName  string `env:"APP_NAME" envDefault:"UserFlow"`
}

// NewConfig loads configuration from environment variables.
func NewConfig() (*Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

var _ auth.Config = (*Config)(nil)

func (c *Config) GetSigningKey() string         { return c.Auth.SigningKey }
func (c *Config) GetContextKey() string         { return c.Auth.ContextKey }
func (c *Config) GetTokenExpiration() int       { return c.Auth.TokenExpiration }
func (c *Config) GetExtendedTokenDuration() int { return c.Auth.ExtendedTokenDuration }
func (c *Config) GetVerifyTokenExpiration() int { return c.Auth.VerifyTokenExpiration }
func (c *Config) GetResetTokenExpiration() int  { return c.Auth.ResetTokenExpiration }
func (c *Config) GetTokenLookup() string        { return c.Auth.TokenLookup }
func (c *Config) GetAuthScheme() string         { return c.Auth.AuthScheme }
func (c *Config) GetIssuer() string             { return c.Auth.Issuer }
func (c *Config) GetAudience() []string         { return nil }
func (c *Config) GetBaseURL() string            { return c.BaseURL }
