package main

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
)

type Config struct {
	Host     string `env:"HOST,default=localhost"`
	Port     int    `env:"PORT,default=8080"`
	GrpcPort int    `env:"GRPC_PORT,default=9090"`
	LogLevel string `env:"LOG_LEVEL,default=INFO"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	LimitMessages  *int   `env:"LIMIT_MESSAGES"`

	JwtSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`

	NumberOfShards       int           `env:"NUMBER_OF_SHARDS,default=4"`
	BufferSize           int           `env:"BUFFER_SIZE,default=256"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=2s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	QueueSampleInterval  time.Duration `env:"QUEUE_SAMPLE_INTERVAL,default=5s"`

	ActionsPerSecond float64 `env:"ACTIONS_PER_SECOND,default=10"`
	ActionBurst      int     `env:"ACTION_BURST,default=20"`
	MaxContentLength int     `env:"MAX_CONTENT_LENGTH,default=2000"`

	CensoredWords             string `env:"CENSORED_WORDS"`
	CensoredWordsDir          string `env:"CENSORED_WORDS_DIR"`
	ModerationCharReplacement string `env:"MODERATION_CHARACTER_REPLACEMENT,default=*"`

	RedisAddr       string `env:"REDIS_ADDR"`
	KafkaBrokers    string `env:"KAFKA_BROKERS"`
	KafkaBadgeTopic string `env:"KAFKA_BADGE_TOPIC,default=campus-chat.badges"`
}

// Replacement is the single character masking censored words.
func (c Config) Replacement() (rune, error) {
	if utf8.RuneCountInString(c.ModerationCharReplacement) != 1 {
		return 0, fmt.Errorf("MODERATION_CHARACTER_REPLACEMENT must be one character, got %q", c.ModerationCharReplacement)
	}
	r, _ := utf8.DecodeRuneInString(c.ModerationCharReplacement)
	return r, nil
}

func (c Config) Brokers() []string {
	return lo.Compact(lo.Map(strings.Split(c.KafkaBrokers, ","), func(b string, _ int) string {
		return strings.TrimSpace(b)
	}))
}
