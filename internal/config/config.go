// Package config loads the INI configuration file into typed structs.
//
// Values come from the file first and can be overridden per key through
// PGOBSERVER_<SECTION>_<KEY> environment variables, e.g. PGOBSERVER_EMAIL_PASSWORD.
// Everything is validated at load time; callers never see a half-valid config.
package config

import (
	"fmt"
	"net/mail"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/ini.v1"

	apperrors "github.com/psantana5/pgobserver/internal/errors"
)

const (
	// DefaultPath is used when no --config flag is given
	DefaultPath = "config.ini"

	// EnvPrefix prefixes environment overrides
	EnvPrefix = "PGOBSERVER"

	// DefaultSMTPTimeout bounds one SMTP session
	DefaultSMTPTimeout = 30 * time.Second
)

// sections and keys read from the file
var knownKeys = map[string][]string{
	"email":   {"server", "port", "username", "password", "emails", "from", "timeout"},
	"log":     {"level", "dir"},
	"tracing": {"endpoint"},
}

// EmailConfig holds SMTP connection parameters. Read-only after Load.
type EmailConfig struct {
	Server     string        `json:"server" yaml:"server"`
	Port       int           `json:"port" yaml:"port"`
	Username   string        `json:"username" yaml:"username"`
	Password   string        `json:"-" yaml:"-"`
	From       string        `json:"from,omitempty" yaml:"from,omitempty"`
	Recipients []string      `json:"recipients" yaml:"recipients"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
}

// Address returns server:port
func (e EmailConfig) Address() string {
	return fmt.Sprintf("%s:%d", e.Server, e.Port)
}

// Sender is the From address; the login name unless [email] from is set
func (e EmailConfig) Sender() string {
	if e.From != "" {
		return e.From
	}
	return e.Username
}

// LogFields describes the email config without the password
func (e EmailConfig) LogFields() map[string]interface{} {
	return map[string]interface{}{
		"server":     e.Address(),
		"username":   e.Username,
		"recipients": strings.Join(e.Recipients, ","),
	}
}

// LogConfig is the optional [log] section
type LogConfig struct {
	Level string `json:"level" yaml:"level"`
	Dir   string `json:"dir" yaml:"dir"`
}

// TracingConfig is the optional [tracing] section
type TracingConfig struct {
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// Config is the whole configuration file
type Config struct {
	Email   EmailConfig   `json:"email" yaml:"email"`
	Log     LogConfig     `json:"log" yaml:"log"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
}

// Load reads and validates the configuration file at path.
// A missing file yields ErrConfigMissing; validation failures yield ErrInvalidConfig.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrConfigMissing, path)
		}
		return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
	}

	// Values are taken verbatim: passwords may contain '#', ';' or quotes
	file, err := ini.LoadSources(ini.LoadOptions{
		InsensitiveKeys:         true,
		IgnoreInlineComment:     true,
		PreserveSurroundedQuote: true,
		IgnoreContinuation:      true,
	}, path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", apperrors.ErrInvalidConfig, path, err)
	}

	v := newViper()
	for section, keys := range knownKeys {
		s, err := file.GetSection(section)
		if err != nil {
			continue // optional, env or defaults may fill it
		}
		values := make(map[string]interface{})
		for _, key := range keys {
			if s.HasKey(key) {
				values[key] = s.Key(key).String()
			}
		}
		if err := v.MergeConfigMap(map[string]interface{}{section: values}); err != nil {
			return nil, fmt.Errorf("failed to merge [%s]: %w", section, err)
		}
	}

	return build(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("email.port", "465")
	v.SetDefault("email.from", "")
	v.SetDefault("email.timeout", strconv.Itoa(int(DefaultSMTPTimeout/time.Second)))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.dir", ".")
	v.SetDefault("tracing.endpoint", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func build(v *viper.Viper) (*Config, error) {
	var problems []string

	cfg := &Config{
		Email: EmailConfig{
			Server:     strings.TrimSpace(v.GetString("email.server")),
			Username:   strings.TrimSpace(v.GetString("email.username")),
			Password:   strings.TrimSpace(v.GetString("email.password")),
			From:       strings.TrimSpace(v.GetString("email.from")),
			Recipients: SplitRecipients(v.GetString("email.emails")),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
			Dir:   v.GetString("log.dir"),
		},
		Tracing: TracingConfig{
			Endpoint: strings.TrimSpace(v.GetString("tracing.endpoint")),
		},
	}

	port, err := strconv.Atoi(strings.TrimSpace(v.GetString("email.port")))
	if err != nil || port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("email.port %q is not a valid port", v.GetString("email.port")))
	}
	cfg.Email.Port = port

	timeout, err := strconv.Atoi(strings.TrimSpace(v.GetString("email.timeout")))
	if err != nil || timeout <= 0 {
		problems = append(problems, fmt.Sprintf("email.timeout %q is not a positive number of seconds", v.GetString("email.timeout")))
	}
	cfg.Email.Timeout = time.Duration(timeout) * time.Second

	if cfg.Email.Server == "" {
		problems = append(problems, "email.server is required")
	}
	if cfg.Email.Username == "" {
		problems = append(problems, "email.username is required")
	}
	if len(cfg.Email.Recipients) == 0 {
		problems = append(problems, "email.emails needs at least one address")
	}
	for _, rcpt := range cfg.Email.Recipients {
		if _, err := mail.ParseAddress(rcpt); err != nil {
			problems = append(problems, fmt.Sprintf("email.emails: %q is not an address", rcpt))
		}
	}

	if sender := cfg.Email.Sender(); sender != "" {
		if _, err := mail.ParseAddress(sender); err != nil {
			if cfg.Email.From != "" {
				problems = append(problems, fmt.Sprintf("email.from %q is not an address", sender))
			} else {
				problems = append(problems, fmt.Sprintf("email.username %q is not an address; set email.from to the sender address", sender))
			}
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return cfg, nil
}

// SplitRecipients splits a comma-joined address list, dropping blanks
func SplitRecipients(joined string) []string {
	var out []string
	for _, part := range strings.Split(joined, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
