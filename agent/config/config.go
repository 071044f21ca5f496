package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jetrmm/sysprobe/shared"
)

const (
	CONFIG_NAME   = "sysprobe"
	CONFIG_FOLDER = "SysProbe"
	ENV_PREFIX    = "SYSPROBE"

	DEFAULT_NAMESPACE    = `root\CIMV2`
	DEFAULT_NATS_SUBJECT = "sysprobe.sysinfo"
	DEFAULT_TIMEOUT      = 15 * time.Second
)

// Config is everything the probe reads from sysprobe.yaml, SYSPROBE_*
// environment variables and the command line, in increasing precedence.
type Config struct {
	AgentID          string        `mapstructure:"agent_id"`
	Namespace        string        `mapstructure:"namespace"`
	FieldErrorPolicy string        `mapstructure:"field_error_policy"`
	Output           string        `mapstructure:"output"`
	ServerURL        string        `mapstructure:"server_url"`
	Token            string        `mapstructure:"token"`
	Cert             string        `mapstructure:"cert"` // root CA for ServerURL
	NatsURL          string        `mapstructure:"nats_url"`
	NatsSubject      string        `mapstructure:"nats_subject"`
	Timeout          time.Duration `mapstructure:"timeout"`
	LogLevel         string        `mapstructure:"log_level"`
	LogTo            string        `mapstructure:"log_to"`
}

// Flag names mapped to the keys they override.
var flagKeys = map[string]string{
	"agent-id":  "agent_id",
	"namespace": "namespace",
	"policy":    "field_error_policy",
	"output":    "output",
	"server":    "server_url",
	"token":     "token",
	"cert":      "cert",
	"nats":      "nats_url",
	"subject":   "nats_subject",
	"timeout":   "timeout",
	"log":       "log_level",
	"logto":     "log_to",
}

func Default() *Config {
	return &Config{
		Namespace:        DEFAULT_NAMESPACE,
		FieldErrorPolicy: string(shared.FieldErrorSkip),
		Output:           string(shared.OutputText),
		NatsSubject:      DEFAULT_NATS_SUBJECT,
		Timeout:          DEFAULT_TIMEOUT,
		LogLevel:         "INFO",
		LogTo:            "stderr",
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("agent_id", d.AgentID)
	v.SetDefault("namespace", d.Namespace)
	v.SetDefault("field_error_policy", d.FieldErrorPolicy)
	v.SetDefault("output", d.Output)
	v.SetDefault("server_url", d.ServerURL)
	v.SetDefault("token", d.Token)
	v.SetDefault("cert", d.Cert)
	v.SetDefault("nats_url", d.NatsURL)
	v.SetDefault("nats_subject", d.NatsSubject)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_to", d.LogTo)
}

// Load reads cfgFile, or sysprobe.yaml from %ProgramData%\SysProbe and the
// working directory when cfgFile is empty. A missing default file is not an
// error. Changed flags in flags override everything else.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(CONFIG_NAME)
		v.SetConfigType("yaml")
		if pd := os.Getenv("ProgramData"); pd != "" {
			v.AddConfigPath(filepath.Join(pd, CONFIG_FOLDER))
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config")
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.Wrapf(err, "bind flag %s", name)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	return cfg, nil
}

// Policy returns the parsed field error policy. Call Validate first.
func (c *Config) Policy() shared.FieldErrorPolicy {
	p, _ := shared.ParseFieldErrorPolicy(c.FieldErrorPolicy)
	return p
}

// Format returns the parsed output format. Call Validate first.
func (c *Config) Format() shared.OutputFormat {
	f, _ := shared.ParseOutputFormat(c.Output)
	return f
}

func (c *Config) Validate() error {
	if c.Namespace == "" {
		return errors.New("namespace must not be empty")
	}
	if _, err := shared.ParseFieldErrorPolicy(c.FieldErrorPolicy); err != nil {
		return err
	}
	if _, err := shared.ParseOutputFormat(c.Output); err != nil {
		return err
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log_level")
	}
	switch c.LogTo {
	case "stdout", "stderr", "file":
	default:
		return errors.Errorf("unknown log destination %q (want stdout, stderr or file)", c.LogTo)
	}
	if c.Timeout <= 0 {
		return errors.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.ServerURL != "" {
		if err := checkURL(c.ServerURL, "http", "https"); err != nil {
			return errors.Wrap(err, "server_url")
		}
	}
	if c.NatsURL != "" {
		if err := checkURL(c.NatsURL, "nats", "tls", "ws", "wss"); err != nil {
			return errors.Wrap(err, "nats_url")
		}
		if c.NatsSubject == "" {
			return errors.New("nats_subject must not be empty when nats_url is set")
		}
	}
	return nil
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return errors.Errorf("%q has no host", raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return errors.Errorf("%q: scheme must be one of %s", raw, strings.Join(schemes, ", "))
}
