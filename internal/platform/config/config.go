package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName  string
	PostgresDSN  string
	KafkaBrokers []string

	PromptRoundDuration time.Duration
	CopyRoundDuration   time.Duration
	VoteRoundDuration   time.Duration
	GracePeriod         time.Duration
	CooldownWindow      time.Duration
	LockTimeout         time.Duration

	SweepInterval time.Duration
	RelayInterval time.Duration

	EnableTimeoutSweep bool
	EnableOutboxRelay  bool
}

func Load() (Config, error) {
	// A missing .env file is fine; real deployments inject the environment.
	_ = godotenv.Load()

	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "phraseforge"
	}

	var brokers []string
	for _, value := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			brokers = append(brokers, value)
		}
	}
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}

	return Config{
		ServiceName:  service,
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
		KafkaBrokers: brokers,

		PromptRoundDuration: envDuration("PROMPT_ROUND_DURATION", 180*time.Second),
		CopyRoundDuration:   envDuration("COPY_ROUND_DURATION", 180*time.Second),
		VoteRoundDuration:   envDuration("VOTE_ROUND_DURATION", 120*time.Second),
		GracePeriod:         envDuration("ROUND_GRACE_PERIOD", 10*time.Second),
		CooldownWindow:      envDuration("ABANDON_COOLDOWN_WINDOW", 6*time.Hour),
		LockTimeout:         envDuration("LOCK_TIMEOUT", 5*time.Second),

		SweepInterval: envDuration("TIMEOUT_SWEEP_INTERVAL", 15*time.Second),
		RelayInterval: envDuration("OUTBOX_RELAY_INTERVAL", 2*time.Second),

		EnableTimeoutSweep: envBool("ENABLE_TIMEOUT_SWEEP", true),
		EnableOutboxRelay:  envBool("ENABLE_OUTBOX_RELAY", true),
	}, nil
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
		return parsed
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}
