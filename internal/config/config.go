package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App   AppConfig
	DB    DBConfig
	Redis RedisConfig
	APNs  APNsConfig
	Push  PushConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for managed-Postgres posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

// APNsConfig carries the native VoIP push credentials.
//
// Missing credentials are NOT a startup error: the VoIP path is optional and
// the gateway fallback covers every device. Enabled() decides at wire-up time.
type APNsConfig struct {
	// Key is the ES256 signing key material (PEM, escaped-newline PEM, or
	// base64-wrapped PEM). KeyPath is the file alternative; Key wins when both
	// are set.
	Key     string
	KeyPath string

	KeyID  string
	TeamID string
	Topic  string

	// Environment selects the push host: production or development.
	Environment string
}

type PushConfig struct {
	GatewayURL string
	Enabled    bool
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.APNs.Key = os.Getenv("APNS_VOIP_KEY")
	c.APNs.KeyPath = strings.TrimSpace(os.Getenv("APNS_KEY_PATH"))
	c.APNs.KeyID = strings.TrimSpace(os.Getenv("APNS_VOIP_KEY_ID"))
	c.APNs.TeamID = strings.TrimSpace(os.Getenv("APNS_TEAM_ID"))
	c.APNs.Topic = strings.TrimSpace(os.Getenv("APNS_VOIP_TOPIC"))
	c.APNs.Environment = strings.TrimSpace(os.Getenv("APNS_VOIP_ENVIRONMENT"))

	c.Push.GatewayURL = strings.TrimSpace(os.Getenv("PUSH_GATEWAY_URL"))
	c.Push.Enabled = boolOrDefault("PUSH_NOTIFICATIONS_ENABLED", true)

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			// Allowed values are enforced below.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	// APNs credentials are only checked for internal consistency, never for
	// presence: partial credentials disable the VoIP path instead of failing.
	if c.APNs.Environment != "" && !isValidAPNsEnvironment(c.APNs.Environment) {
		errs = append(errs, fmt.Errorf("APNS_VOIP_ENVIRONMENT must be production or development, got %q", c.APNs.Environment))
	}

	return joinErrors(errs)
}

// Enabled reports whether every credential the VoIP path needs is present.
func (a APNsConfig) Enabled() bool {
	hasKey := a.Key != "" || a.KeyPath != ""
	return hasKey && a.KeyID != "" && a.TeamID != "" && a.Topic != ""
}

// KeyMaterial returns the signing key, reading KeyPath when Key is unset.
func (a APNsConfig) KeyMaterial() (string, error) {
	if a.Key != "" {
		return a.Key, nil
	}
	if a.KeyPath == "" {
		return "", errors.New("no apns key configured")
	}
	b, err := os.ReadFile(a.KeyPath)
	if err != nil {
		return "", fmt.Errorf("read apns key file: %w", err)
	}
	return string(b), nil
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func boolOrDefault(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func isValidAPNsEnvironment(v string) bool {
	return v == "production" || v == "development"
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
