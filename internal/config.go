package internal

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	LogLevel        string `env:"LOG_LEVEL,default=INFO"`
	BadgerFilepath  string `env:"BADGER_FILEPATH,required=true"`
	ObjectStoreRoot string `env:"OBJECT_STORE_ROOT,required=true"`
	SigningKey      string `env:"SIGNING_KEY,required=true"`
	Host            string `env:"HOST,default=0.0.0.0"`
	GRPCPort        int    `env:"GRPC_PORT,default=50051"`
	HTTPPort        int    `env:"HTTP_PORT,default=8080"`
	DebugPort       int    `env:"DEBUG_PORT,default=8081"`
	// AdminUserID is the counterpart of every client conversation. When empty
	// the admin account described by the ADMIN_* keys is seeded and used.
	AdminUserID   string `env:"ADMIN_USER_ID"`
	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
	AdminName     string `env:"ADMIN_NAME,default=Portal Team"`

	SessionTTL       time.Duration `env:"SESSION_TTL,default=24h"`
	LockoutAttempts  int           `env:"LOCKOUT_ATTEMPTS,default=5"`
	LockoutWindow    time.Duration `env:"LOCKOUT_WINDOW,default=15m"`
	LocalListLimit   int           `env:"LOCAL_LIST_LIMIT,default=200"`
	LimitMessages    *int          `env:"LIMIT_MESSAGES"`
	MaxContentLength int           `env:"MAX_CONTENT_LENGTH,default=5000"`
	MaxUploadBytes   int           `env:"MAX_UPLOAD_BYTES,default=52428800"`
	CensoredWords    string        `env:"CENSORED_WORDS"`
	CharReplacement  string        `env:"CHARACTER_REPLACEMENT,default=*"`
	RestartInterval  time.Duration `env:"RESTART_INTERVAL,default=1s"`
	MetricInterval   time.Duration `env:"METRIC_INTERVAL,default=15s"`
	CacheBackend     string        `env:"CACHE_BACKEND,default=memory"`
	BufferSize       int           `env:"BUFFER_SIZE,default=64"`
	DeliveryTimeout  time.Duration `env:"DELIVERY_TIMEOUT,default=200ms"`
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

// Words splits a comma separated list, dropping blanks.
func Words(list string) []string {
	var words []string
	for _, w := range strings.Split(list, ",") {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	return words
}

// Validate checks what the env tags cannot express.
func (c Config) Validate() error {
	switch c.CacheBackend {
	case "memory", "badger":
	default:
		return fmt.Errorf("CACHE_BACKEND must be memory or badger, got %q", c.CacheBackend)
	}
	if len(c.SigningKey) < 16 {
		return fmt.Errorf("SIGNING_KEY must hold at least 16 bytes")
	}
	if c.AdminUserID == "" && (c.AdminEmail == "" || c.AdminPassword == "") {
		return fmt.Errorf("either ADMIN_USER_ID or ADMIN_EMAIL and ADMIN_PASSWORD must be set")
	}
	return nil
}
