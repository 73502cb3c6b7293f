package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Bibi40k/podnet-primitives/internal/podnet"
)

// Config holds the robot settings used to reach the PodNet nodes and KVM hosts.
type Config struct {
	PodNetConfig string         `yaml:"podnet_config"`
	SSH          SSHConfig      `yaml:"ssh"`
	Timeouts     TimeoutsConfig `yaml:"timeouts"`
	Metrics      MetricsConfig  `yaml:"metrics"`
}

type SSHConfig struct {
	User           string `yaml:"user"`
	Port           int    `yaml:"port"`
	PrivateKey     string `yaml:"private_key"`
	KnownHostsFile string `yaml:"known_hosts_file"`
	KnownHostsMode string `yaml:"known_hosts_mode"`
}

type TimeoutsConfig struct {
	ConnectSeconds         int `yaml:"connect_seconds"`
	CommandSeconds         int `yaml:"command_seconds"`
	ProbeRetries           int `yaml:"probe_retries"`
	ProbeRetryDelaySeconds int `yaml:"probe_retry_delay_seconds"`
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

func (t TimeoutsConfig) ConnectDuration() time.Duration {
	return time.Duration(t.ConnectSeconds) * time.Second
}

func (t TimeoutsConfig) CommandDuration() time.Duration {
	return time.Duration(t.CommandSeconds) * time.Second
}

func (t TimeoutsConfig) ProbeRetryDelay() time.Duration {
	return time.Duration(t.ProbeRetryDelaySeconds) * time.Second
}

func defaultConfig() Config {
	return Config{
		PodNetConfig: podnet.DefaultConfigPath,
		SSH: SSHConfig{
			User:           "robot",
			Port:           22,
			PrivateKey:     "~/.ssh/id_ed25519",
			KnownHostsFile: "~/.ssh/known_hosts",
			KnownHostsMode: "strict",
		},
		Timeouts: TimeoutsConfig{
			ConnectSeconds:         10,
			CommandSeconds:         60,
			ProbeRetries:           3,
			ProbeRetryDelaySeconds: 2,
		},
	}
}

// Load reads the robot config at path. An empty path yields the defaults with
// environment overrides applied.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if strings.TrimSpace(path) != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		expanded := os.ExpandEnv(string(content))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	expandHomePaths(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PODNET_SSH_USER"); v != "" {
		cfg.SSH.User = v
	}
	if v := os.Getenv("PODNET_SSH_PRIVATE_KEY"); v != "" {
		cfg.SSH.PrivateKey = v
	}
	if v := os.Getenv("PODNET_CONFIG"); v != "" {
		cfg.PodNetConfig = v
	}
	if v := os.Getenv("PODNET_KNOWN_HOSTS_FILE"); v != "" {
		cfg.SSH.KnownHostsFile = v
	}
}

func expandHomePaths(cfg *Config) {
	cfg.PodNetConfig = expandHome(cfg.PodNetConfig)
	cfg.SSH.PrivateKey = expandHome(cfg.SSH.PrivateKey)
	cfg.SSH.KnownHostsFile = expandHome(cfg.SSH.KnownHostsFile)
	cfg.Metrics.Textfile = expandHome(cfg.Metrics.Textfile)
}

func expandHome(path string) string {
	p := strings.TrimSpace(path)
	if p == "" || !strings.HasPrefix(p, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, strings.TrimPrefix(p, "~/"))
	}
	return path
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.PodNetConfig) == "" {
		return fmt.Errorf("podnet_config is required")
	}
	if strings.TrimSpace(c.SSH.User) == "" {
		return fmt.Errorf("ssh.user is required")
	}
	if c.SSH.Port <= 0 || c.SSH.Port > 65535 {
		return fmt.Errorf("ssh.port must be in range 1..65535")
	}
	if strings.TrimSpace(c.SSH.PrivateKey) == "" {
		return fmt.Errorf("ssh.private_key is required")
	}
	if strings.HasSuffix(strings.ToLower(strings.TrimSpace(c.SSH.PrivateKey)), ".pub") {
		return fmt.Errorf("ssh.private_key must point to a private key, not a .pub file")
	}
	mode := NormalizeKnownHostsMode(c.SSH.KnownHostsMode)
	if mode == "" {
		return fmt.Errorf("ssh.known_hosts_mode must be one of: strict, prompt, accept-new, insecure")
	}
	if mode != "insecure" && strings.TrimSpace(c.SSH.KnownHostsFile) == "" {
		return fmt.Errorf("ssh.known_hosts_file is required when ssh.known_hosts_mode is %s", mode)
	}
	if c.Timeouts.ConnectSeconds <= 0 {
		return fmt.Errorf("timeouts.connect_seconds must be > 0")
	}
	if c.Timeouts.CommandSeconds <= 0 {
		return fmt.Errorf("timeouts.command_seconds must be > 0")
	}
	if c.Timeouts.ProbeRetries <= 0 {
		return fmt.Errorf("timeouts.probe_retries must be > 0")
	}
	if c.Timeouts.ProbeRetryDelaySeconds < 0 {
		return fmt.Errorf("timeouts.probe_retry_delay_seconds must be >= 0")
	}
	return nil
}

// NormalizeKnownHostsMode returns the canonical mode name, or "" when mode is
// not recognised.
func NormalizeKnownHostsMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "strict":
		return "strict"
	case "prompt":
		return "prompt"
	case "accept-new", "accept_new":
		return "accept-new"
	case "insecure", "off":
		return "insecure"
	default:
		return ""
	}
}
