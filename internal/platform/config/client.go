package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	ClientEnvPrefix     = "ERPCTL_"
	ClientConfigPathEnv = "ERPCTL_CONFIG"
)

// Client configures the erpctl console. Precedence is defaults, then the
// YAML file, then ERPCTL_* variables, then command-line flags.
type Client struct {
	ServerURL          string        `koanf:"server_url"`
	DataDir            string        `koanf:"data_dir"`
	Ephemeral          bool          `koanf:"ephemeral"`
	EncryptionKey      string        `koanf:"encryption_key"`
	Timeout            time.Duration `koanf:"timeout"`
	RatePerSecond      float64       `koanf:"rate_per_second"`
	RateBurst          int           `koanf:"rate_burst"`
	BreakerMaxFailures uint32        `koanf:"breaker_max_failures"`
	BreakerOpenTimeout time.Duration `koanf:"breaker_open_timeout"`
	Verbose            bool          `koanf:"verbose"`
}

func defaultClient() Client {
	return Client{
		ServerURL:          "http://localhost:8080",
		DataDir:            defaultDataDir(),
		Timeout:            10 * time.Second,
		RatePerSecond:      5,
		RateBurst:          5,
		BreakerMaxFailures: 5,
		BreakerOpenTimeout: 30 * time.Second,
	}
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "erpctl", "session")
}

// DefaultClientConfigPath is where erpctl looks for its YAML file when
// neither --config nor ERPCTL_CONFIG is given.
func DefaultClientConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "erpctl", "config.yaml")
}

// LoadClient layers the console configuration. path may be empty; a
// missing default file is not an error, a missing explicit one is.
// overrides holds flag values keyed like the koanf tags.
func LoadClient(path string, overrides map[string]any) (Client, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultClient(), "koanf"), nil); err != nil {
		return Client{}, fmt.Errorf("load defaults: %w", err)
	}

	explicit := path != ""
	if !explicit {
		if envPath := os.Getenv(ClientConfigPathEnv); envPath != "" {
			path, explicit = envPath, true
		} else {
			path = DefaultClientConfigPath()
		}
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Client{}, fmt.Errorf("load config file %s: %w", path, err)
			}
		} else if explicit || !errors.Is(err, os.ErrNotExist) {
			return Client{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(ClientEnvPrefix, ".", clientEnvKey), nil); err != nil {
		return Client{}, fmt.Errorf("load environment: %w", err)
	}

	for key, value := range overrides {
		if err := k.Set(key, value); err != nil {
			return Client{}, fmt.Errorf("set %s: %w", key, err)
		}
	}

	var cfg Client
	if err := k.Unmarshal("", &cfg); err != nil {
		return Client{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

// clientEnvKey maps ERPCTL_SERVER_URL to server_url. ERPCTL_CONFIG names
// the file itself and is skipped.
func clientEnvKey(key string) string {
	if key == ClientConfigPathEnv {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(key, ClientEnvPrefix))
}

func (c Client) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server_url must be an absolute http(s) URL, got %q", c.ServerURL)
	}
	if !c.Ephemeral && strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data_dir is required unless ephemeral is set")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.RatePerSecond <= 0 || c.RateBurst <= 0 {
		return fmt.Errorf("rate_per_second and rate_burst must be positive")
	}
	if c.BreakerMaxFailures == 0 {
		return fmt.Errorf("breaker_max_failures must be positive")
	}
	return nil
}
