package bootstrap

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment variable, e.g. QUIZ_DATABASE_URL.
const EnvPrefix = "QUIZ"

// Config is the runtime configuration. Every field has a flag; every flag can
// also come from the environment.
type Config struct {
	DatabaseURL   string
	AutoMigrate   bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string

	JWTSecret      string
	JWTExpiryHours int

	Port              int
	AppEnv            string
	LogLevel          string
	CORSOrigins       []string
	JoinURL           string
	RateLimitMax      int
	RateLimitWindow   time.Duration
	AnswerTimeout     time.Duration
	PresenceWindow    time.Duration
	MatchRequestTTL   time.Duration
	SweepInterval     time.Duration
	WorkerConcurrency int
	ChangeFeed        bool
}

// RegisterFlags declares the configuration flags on fs.
func RegisterFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVar(&cfg.DatabaseURL, "database-url", "", "postgres connection string (env: QUIZ_DATABASE_URL)")
	fs.BoolVar(&cfg.AutoMigrate, "auto-migrate", true, "apply pending migrations on serve (env: QUIZ_AUTO_MIGRATE)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", "localhost:6379", "redis address (env: QUIZ_REDIS_ADDR)")
	fs.StringVar(&cfg.RedisPassword, "redis-password", "", "redis password (env: QUIZ_REDIS_PASSWORD)")
	fs.IntVar(&cfg.RedisDB, "redis-db", 0, "redis database number (env: QUIZ_REDIS_DB)")
	fs.StringVar(&cfg.KeyPrefix, "key-prefix", "quiz:", "prefix for redis keys and channels (env: QUIZ_KEY_PREFIX)")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "HMAC secret for session tokens (env: QUIZ_JWT_SECRET)")
	fs.IntVar(&cfg.JWTExpiryHours, "jwt-expiry-hours", 24, "session token lifetime in hours (env: QUIZ_JWT_EXPIRY_HOURS)")
	fs.IntVarP(&cfg.Port, "port", "p", 8080, "port to listen on (env: QUIZ_PORT)")
	fs.StringVar(&cfg.AppEnv, "env", "development", "development or production (env: QUIZ_ENV)")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "logrus level (env: QUIZ_LOG_LEVEL)")
	fs.StringSliceVar(&cfg.CORSOrigins, "cors-origins", []string{"http://localhost:3000"}, "allowed browser origins, comma separated (env: QUIZ_CORS_ORIGINS)")
	fs.StringVar(&cfg.JoinURL, "join-url", "", "public join link prefix encoded in room QR codes (env: QUIZ_JOIN_URL)")
	fs.IntVar(&cfg.RateLimitMax, "rate-limit-max", 100, "requests allowed per client per window (env: QUIZ_RATE_LIMIT_MAX)")
	fs.DurationVar(&cfg.RateLimitWindow, "rate-limit-window", time.Second, "rate limit window (env: QUIZ_RATE_LIMIT_WINDOW)")
	fs.DurationVar(&cfg.AnswerTimeout, "answer-timeout", 30*time.Second, "time to answer a selected question (env: QUIZ_ANSWER_TIMEOUT)")
	fs.DurationVar(&cfg.PresenceWindow, "presence-window", 60*time.Second, "heartbeat age after which a player counts as offline (env: QUIZ_PRESENCE_WINDOW)")
	fs.DurationVar(&cfg.MatchRequestTTL, "match-request-ttl", 5*time.Minute, "lifetime of a pending match request (env: QUIZ_MATCH_REQUEST_TTL)")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", time.Minute, "period of the expiry and presence sweeps (env: QUIZ_SWEEP_INTERVAL)")
	fs.IntVar(&cfg.WorkerConcurrency, "worker-concurrency", 2, "background task workers (env: QUIZ_WORKER_CONCURRENCY)")
	fs.BoolVar(&cfg.ChangeFeed, "change-feed", true, "listen for postgres row changes (env: QUIZ_CHANGE_FEED)")
}

// ApplyEnv loads .env if present and copies QUIZ_* variables into flags that
// were not set on the command line. Call it before the flags are parsed, so
// explicit flags still win.
func ApplyEnv(fs *pflag.FlagSet) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

// Validate checks what serve needs. migrate only needs DatabaseURL.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("--database-url is required"))
	}
	if c.RedisAddr == "" {
		errs = append(errs, errors.New("--redis-addr is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("--jwt-secret is required"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.LogLevel))
	}
	if c.AppEnv != "development" && c.AppEnv != "production" {
		errs = append(errs, fmt.Errorf("env must be development or production, got %q", c.AppEnv))
	}
	if c.RateLimitMax <= 0 || c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("rate limit max and window must be positive"))
	}
	for name, d := range map[string]time.Duration{
		"answer-timeout":    c.AnswerTimeout,
		"presence-window":   c.PresenceWindow,
		"match-request-ttl": c.MatchRequestTTL,
		"sweep-interval":    c.SweepInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("--%s must be positive", name))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) Production() bool { return c.AppEnv == "production" }

// NewLogger builds the application logger: JSON in production, text otherwise.
// The package-level logrus logger used across the services gets the same
// formatter and level.
func NewLogger(c *Config) *logrus.Logger {
	log := logrus.New()
	configureLogger(log, c)
	configureLogger(logrus.StandardLogger(), c)
	return log
}

func configureLogger(log *logrus.Logger, c *Config) {
	if c.Production() {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
}
