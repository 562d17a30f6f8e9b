package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Sponsor SponsorConfig `yaml:"sponsor"`
	Prover  ProverConfig  `yaml:"prover"`
	NATS    NATSConfig    `yaml:"nats"`
	Admin   AdminConfig   `yaml:"admin"`
	CORS    CORSConfig    `yaml:"cors"`
	Cache   CacheConfig   `yaml:"cache"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LedgerConfig ledger node configuration
type LedgerConfig struct {
	// Network selector: "mainnet" or "testnet"
	Network string `yaml:"network"`
	// Optional third-party RPC API key; falls back to the default public
	// endpoint when empty
	APIKey string `yaml:"apiKey"`
	// Optional node URL override (keeps the selected network's chain id)
	NodeURL string `yaml:"nodeUrl"`
	// Fully qualified coin types for the two supported non-native tokens
	TokenACoinType string `yaml:"tokenACoinType"`
	TokenBCoinType string `yaml:"tokenBCoinType"`
	// Submission timeout (seconds)
	Timeout int `yaml:"timeout"`
}

// SponsorConfig sponsor (fee-payer) key material
type SponsorConfig struct {
	// Hex-encoded ed25519 private key. Required; the process refuses to start
	// without it.
	PrivateKey string `yaml:"privateKey"`
}

// ProverConfig upstream proof service configuration
type ProverConfig struct {
	BaseURL string `yaml:"baseUrl"`
	// Request timeout (seconds); proof generation is slow, default is 120s
	Timeout int `yaml:"timeout"`
	// Salt/randomness width (bytes) the upstream service accepts. Values wider
	// than this are adapted (hashed + truncated) for the outbound call only.
	MaxInputWidth int `yaml:"maxInputWidth"`
}

// NATSConfig NATS message server configuration (publisher disabled when URL empty)
type NATSConfig struct {
	URL           string `yaml:"url"`
	Timeout       int    `yaml:"timeout"`
	ReconnectWait int    `yaml:"reconnect_wait"`
	MaxReconnects int    `yaml:"max_reconnects"`
}

// AdminConfig admin API access configuration (routes disabled when TOTP secret empty)
type AdminConfig struct {
	TOTPSecret string `yaml:"totpSecret"`
	JWTSecret  string `yaml:"jwtSecret"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

// CacheConfig pending transaction cache configuration
type CacheConfig struct {
	// Entry TTL (seconds); default 300
	TTL int `yaml:"ttl"`
	// Background sweep interval (seconds); default 60
	SweepInterval int `yaml:"sweepInterval"`
}

// LoadConfig loads the yaml configuration file and applies env overrides
func LoadConfig(configPath string) (*Config, error) {
	var config Config

	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
		}
	}

	// Config file is optional; everything can come from environment variables
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		fmt.Printf("✅ [Config] Loaded configuration from file: %s\n", configPath)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	overrideFromEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

// overrideFromEnv environment variables take priority over the config file
func overrideFromEnv(config *Config) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if network := os.Getenv("LEDGER_NETWORK"); network != "" {
		config.Ledger.Network = network
	}
	if apiKey := os.Getenv("LEDGER_API_KEY"); apiKey != "" {
		config.Ledger.APIKey = apiKey
	}
	if nodeURL := os.Getenv("LEDGER_NODE_URL"); nodeURL != "" {
		config.Ledger.NodeURL = nodeURL
	}
	if coinType := os.Getenv("TOKEN_A_COIN_TYPE"); coinType != "" {
		config.Ledger.TokenACoinType = coinType
	}
	if coinType := os.Getenv("TOKEN_B_COIN_TYPE"); coinType != "" {
		config.Ledger.TokenBCoinType = coinType
	}

	if privateKey := os.Getenv("SPONSOR_PRIVATE_KEY"); privateKey != "" {
		config.Sponsor.PrivateKey = privateKey
	}

	if proverURL := os.Getenv("PROVER_BASE_URL"); proverURL != "" {
		config.Prover.BaseURL = proverURL
	}
	if proverTimeout := os.Getenv("PROVER_TIMEOUT"); proverTimeout != "" {
		if t, err := strconv.Atoi(proverTimeout); err == nil {
			config.Prover.Timeout = t
		}
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}

	if totpSecret := os.Getenv("ADMIN_TOTP_SECRET"); totpSecret != "" {
		config.Admin.TOTPSecret = totpSecret
	}
	if jwtSecret := os.Getenv("ADMIN_JWT_SECRET"); jwtSecret != "" {
		config.Admin.JWTSecret = jwtSecret
	}
	if username := os.Getenv("ADMIN_USERNAME"); username != "" {
		config.Admin.Username = username
	}
	if password := os.Getenv("ADMIN_PASSWORD"); password != "" {
		config.Admin.Password = password
	}

	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		origins := strings.Split(corsOrigins, ",")
		config.CORS.AllowedOrigins = make([]string, 0, len(origins))
		for _, origin := range origins {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				config.CORS.AllowedOrigins = append(config.CORS.AllowedOrigins, trimmed)
			}
		}
	}
}

func applyDefaults(config *Config) {
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Ledger.Network == "" {
		config.Ledger.Network = "testnet"
	}
	if config.Prover.Timeout == 0 {
		config.Prover.Timeout = 120
	}
	if config.Prover.MaxInputWidth == 0 {
		config.Prover.MaxInputWidth = 16
	}
	if config.Cache.TTL == 0 {
		config.Cache.TTL = 300
	}
	if config.Cache.SweepInterval == 0 {
		config.Cache.SweepInterval = 60
	}
}

// Validate required values cause startup failure, not a runtime error.
// The ledger API key is deliberately not required (public endpoint fallback).
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Sponsor.PrivateKey) == "" {
		return fmt.Errorf("sponsor private key is not configured (SPONSOR_PRIVATE_KEY)")
	}
	if strings.TrimSpace(c.Prover.BaseURL) == "" {
		return fmt.Errorf("prover base URL is not configured (PROVER_BASE_URL)")
	}
	switch c.Ledger.Network {
	case "mainnet", "main", "testnet", "test":
	default:
		return fmt.Errorf("unknown ledger network %q (expected mainnet or testnet)", c.Ledger.Network)
	}
	return nil
}
