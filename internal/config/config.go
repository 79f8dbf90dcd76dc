package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPath   = "/etc/tmik/config.yaml"
	DefaultIRCURL = "wss://irc-ws.chat.twitch.tv:443"
)

type Config struct {
	HTTP struct {
		Bind string `yaml:"bind"`
		Port int    `yaml:"port"`
		TLS  struct {
			Enabled bool   `yaml:"enabled"`
			Cert    string `yaml:"cert"`
			Key     string `yaml:"key"`
		} `yaml:"tls"`
	} `yaml:"http"`
	Auth struct {
		JWTPublicKeys []string `yaml:"jwt_public_keys"` // PEM certificate paths
		Issuer        string   `yaml:"issuer"`
		Audience      string   `yaml:"audience"`
	} `yaml:"auth"`
	Logging struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"logging"`
	IRC struct {
		URL          string        `yaml:"url"`
		Nick         string        `yaml:"nick"`
		Token        string        `yaml:"token"` // oauth:xxxx
		Channels     []string      `yaml:"channels"`
		Insecure     bool          `yaml:"insecure"`
		Fake         bool          `yaml:"fake"`
		FakeInterval time.Duration `yaml:"fake_interval"`
		RedialDelay  time.Duration `yaml:"redial_delay"`
	} `yaml:"irc"`
	Plugins []PluginEntry `yaml:"plugins"`
}

// PluginEntry names a builtin plugin, or a shared object when Path is set.
type PluginEntry struct {
	Name   string                 `yaml:"name"`
	Path   string                 `yaml:"path"`
	Entry  string                 `yaml:"entry"`
	Config map[string]interface{} `yaml:"config"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Bind == "" {
		c.HTTP.Bind = "0.0.0.0"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.IRC.URL == "" {
		c.IRC.URL = DefaultIRCURL
	}
	if c.IRC.FakeInterval == 0 {
		c.IRC.FakeInterval = 2 * time.Second
	}
	if c.IRC.RedialDelay == 0 {
		c.IRC.RedialDelay = 2 * time.Second
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		errs = append(errs, errors.New("http.port out of range 1-65535"))
	}
	if c.HTTP.TLS.Enabled && (c.HTTP.TLS.Cert == "" || c.HTTP.TLS.Key == "") {
		errs = append(errs, errors.New("http.tls requires cert and key"))
	}
	if !c.IRC.Fake && c.IRC.Nick == "" {
		errs = append(errs, errors.New("irc.nick is required unless irc.fake is set"))
	}
	for i, p := range c.Plugins {
		if p.Name == "" && p.Path == "" {
			errs = append(errs, fmt.Errorf("plugins[%d]: name or path is required", i))
		}
	}
	return errors.Join(errs...)
}
