package internal

import (
	"fmt"
	"time"
)

type Config struct {
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`
	BlobFilepath   string `env:"BLOB_FILEPATH,required=true"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`

	// RetentionWindow bounds the locally materialized message log.
	RetentionWindow int `env:"RETENTION_WINDOW,required=true"`

	MaxBlobBytes           int64         `env:"MAX_BLOB_BYTES,required=true"`
	MaxSubscriptionRetries int           `env:"MAX_SUBSCRIPTION_RETRIES,required=true"`
	SessionTokenSecret     string        `env:"SESSION_TOKEN_SECRET,required=true"`
	SessionTokenDuration   time.Duration `env:"SESSION_TOKEN_DURATION,required=true"`
	StatsInterval          time.Duration `env:"STATS_INTERVAL,required=true"`

	// CensorWords is a comma separated forbidden word list. Empty
	// disables the profanity scrub.
	CensorWords     string `env:"CENSOR_WORDS"`
	CharReplacement string `env:"CHARACTER_REPLACEMENT,required=true"`
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}

// ValidateRetention keeps the window in a range the merge logic and the
// search index can sustain.
func ValidateRetention(window int) error {
	if window < 1 || window > 1000 {
		return fmt.Errorf("RETENTION_WINDOW must be within 1..1000, got %d", window)
	}
	return nil
}
