package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/t77yq/cronthat/internal/runner"
	"github.com/t77yq/cronthat/internal/scheduler"
)

// UntilLayout is the accepted layout for the until timestamp
const UntilLayout = "2006-01-02 15:04:05"

// EnvPrefix prefixes every environment variable read by Viper
const EnvPrefix = "CRONTHAT"

// Keys shared by flags, environment variables and the config file
const (
	KeyStopOnError    = "stop_on_error"
	KeyRepetitions    = "repetitions"
	KeyUntil          = "until"
	KeyRunImmediately = "run_immediately"
	KeyShell          = "shell"
	KeyWorkDir        = "workdir"
	KeyEnv            = "env"
	KeyTimezone       = "timezone"
	KeyHistoryDB      = "history.db"
	KeyHostStats      = "history.host_stats"
	KeyNATSURL        = "nats.url"
	KeyNATSStream     = "nats.stream"
	KeyLogLevel       = "log.level"
	KeyLogFormat      = "log.format"
)

// Config holds everything needed to run one schedule
type Config struct {
	Expression     string
	Command        []string
	StopOnError    bool
	Repetitions    *int
	Until          *time.Time
	RunImmediately bool
	Shell          string
	WorkDir        string
	Env            map[string]string
	Location       *time.Location
	HistoryDB      string
	HostStats      bool
	NATSURL        string
	NATSStream     string
	LogLevel       string
	LogFormat      string
}

// NewViper creates a Viper instance with defaults, environment binding and,
// when present, the config file. An explicit file that cannot be read is
// an error; a missing default file is not.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("cronthat")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "cronthat"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return v, nil
}

// SetDefaults registers the default value of every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyStopOnError, false)
	v.SetDefault(KeyRunImmediately, false)
	v.SetDefault(KeyShell, runner.DefaultShell)
	v.SetDefault(KeyWorkDir, "")
	v.SetDefault(KeyEnv, []string{})
	v.SetDefault(KeyTimezone, "Local")
	v.SetDefault(KeyHistoryDB, "")
	v.SetDefault(KeyHostStats, true)
	v.SetDefault(KeyNATSURL, "")
	v.SetDefault(KeyNATSStream, "CRONTHAT")
	v.SetDefault(KeyLogLevel, "error")
	v.SetDefault(KeyLogFormat, "console")
}

// Load builds a Config from v and the positional arguments, which are the
// cron expression followed by the command. The result is validated.
func Load(v *viper.Viper, args []string) (*Config, error) {
	cfg := &Config{
		StopOnError:    v.GetBool(KeyStopOnError),
		RunImmediately: v.GetBool(KeyRunImmediately),
		Shell:          v.GetString(KeyShell),
		WorkDir:        v.GetString(KeyWorkDir),
		HistoryDB:      v.GetString(KeyHistoryDB),
		HostStats:      v.GetBool(KeyHostStats),
		NATSURL:        v.GetString(KeyNATSURL),
		NATSStream:     v.GetString(KeyNATSStream),
		LogLevel:       v.GetString(KeyLogLevel),
		LogFormat:      v.GetString(KeyLogFormat),
	}
	if len(args) > 0 {
		cfg.Expression = args[0]
		cfg.Command = args[1:]
		// Flag parsing stops at the expression, so a separator placed
		// after it is still in the command.
		if len(cfg.Command) > 0 && cfg.Command[0] == "--" {
			cfg.Command = cfg.Command[1:]
		}
	}

	env, err := ParseEnv(v.GetStringSlice(KeyEnv))
	if err != nil {
		return nil, err
	}
	cfg.Env = env

	loc, err := LoadLocation(v.GetString(KeyTimezone))
	if err != nil {
		return nil, err
	}
	cfg.Location = loc

	if v.IsSet(KeyRepetitions) {
		n := v.GetInt(KeyRepetitions)
		cfg.Repetitions = &n
	}
	if raw := v.GetString(KeyUntil); raw != "" {
		until, err := ParseUntil(raw, loc)
		if err != nil {
			return nil, err
		}
		cfg.Until = &until
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants Load cannot express through types
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Expression) == "" {
		return ErrNoExpression
	}
	if len(c.Command) == 0 || strings.TrimSpace(strings.Join(c.Command, "")) == "" {
		return ErrNoCommand
	}
	if c.Repetitions != nil && c.Until != nil {
		return ErrMutuallyExclusive
	}
	if c.Repetitions != nil && *c.Repetitions < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidRepetitions, *c.Repetitions)
	}
	return nil
}

// Policy builds the termination policy described by the config
func (c *Config) Policy() (scheduler.Policy, error) {
	var (
		policy scheduler.Policy
		err    error
	)
	switch {
	case c.Repetitions != nil:
		policy, err = scheduler.NewMaxRepetitionsPolicy(*c.Repetitions)
		if err != nil {
			return scheduler.Policy{}, err
		}
	case c.Until != nil:
		policy = scheduler.NewEndAtPolicy(*c.Until)
	default:
		policy = scheduler.NewUnboundedPolicy()
	}
	return policy.WithStopOnError(c.StopOnError).WithRunImmediately(c.RunImmediately), nil
}

// ParseEnv converts KEY=VALUE entries into a map. Values may be empty and
// may contain '='.
func ParseEnv(entries []string) (map[string]string, error) {
	env := make(map[string]string, len(entries))
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("%w: %q, expected KEY=VALUE", ErrInvalidEnv, entry)
		}
		env[key] = value
	}
	return env, nil
}

// ParseUntil parses an until timestamp in loc. RFC 3339 timestamps carry
// their own offset and are accepted as well.
func ParseUntil(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.ParseInLocation(UntilLayout, raw, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(loc), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q, expected %q", ErrInvalidUntil, raw, UntilLayout)
}

// LoadLocation resolves a timezone name. Empty and "Local" mean the
// system's local zone.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTimezone, err)
	}
	return loc, nil
}
