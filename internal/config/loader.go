package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/keygate/pkg/keygateconfig"
)

// DefaultCategories is the category enumeration used when none is configured.
var DefaultCategories = []string{
	"100082", "authgop", "mtacc", "garena", "roblox", "gaslite",
	"mobilelegends", "pubg", "codashop", "facebook", "Instagram",
	"netflix", "tiktok", "telegram", "freefire", "bloodstrike",
}

func Default() keygateconfig.Config {
	return keygateconfig.Config{
		Quota:        100,
		Categories:   append([]string(nil), DefaultCategories...),
		Keys:         keygateconfig.Keys{Prefix: "NAME-", Digits: 5, MaxAttempts: 32},
		Entitlements: keygateconfig.Entitlements{Backend: "file", Path: "keys.json"},
		Ledger:       keygateconfig.Ledger{Backend: "file", Path: "used_accounts.txt"},
		Pools:        keygateconfig.Pools{Dir: ".", Files: []string{"logs.txt", "v2.txt", "v3.txt", "v4.txt", "v5.txt"}},
		Redis:        keygateconfig.Redis{Addr: "127.0.0.1:6379", Prefix: "keygate:"},
		API:          keygateconfig.API{Addr: ":8080"},
		Replay:       keygateconfig.Replay{Backend: "memory", TTL: "5m"},
		Log:          keygateconfig.Log{Level: "info", Format: "text"},
	}
}

func Load(path string) (keygateconfig.Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return keygateconfig.Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Decode(content)
	if err != nil {
		return keygateconfig.Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return keygateconfig.Config{}, err
	}
	return cfg, nil
}

// FromEnv loads the file named by KEYGATE_CONFIG (defaults when unset),
// overlays KEYGATE_* variables and validates the result.
func FromEnv() (keygateconfig.Config, error) {
	return Resolve(os.Getenv("KEYGATE_CONFIG"))
}

// Resolve is FromEnv with an explicit config path; an empty path starts
// from the defaults.
func Resolve(path string) (keygateconfig.Config, error) {
	cfg := Default()
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return keygateconfig.Config{}, fmt.Errorf("read config: %w", err)
		}
		if cfg, err = Decode(content); err != nil {
			return keygateconfig.Config{}, err
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return keygateconfig.Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return keygateconfig.Config{}, err
	}
	return cfg, nil
}

// Decode parses YAML (or JSON) on top of the defaults.
func Decode(content []byte) (keygateconfig.Config, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return keygateconfig.Config{}, fmt.Errorf("empty config payload")
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return keygateconfig.Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func ValidateBytes(content []byte) error {
	cfg, err := Decode(content)
	if err != nil {
		return err
	}
	return Validate(cfg)
}

func Validate(cfg keygateconfig.Config) error {
	if strings.TrimSpace(cfg.AdminID) == "" {
		return fmt.Errorf("adminId is required")
	}
	if cfg.Quota <= 0 {
		return fmt.Errorf("quota must be positive, got %d", cfg.Quota)
	}
	if len(cfg.Categories) == 0 {
		return fmt.Errorf("at least one category is required")
	}
	seen := map[string]struct{}{}
	for _, c := range cfg.Categories {
		if c == "" {
			return fmt.Errorf("categories must not be empty strings")
		}
		if _, dup := seen[c]; dup {
			return fmt.Errorf("duplicate category %q", c)
		}
		seen[c] = struct{}{}
	}
	if cfg.Keys.Digits <= 0 || cfg.Keys.Digits > 18 {
		return fmt.Errorf("keys.digits must be between 1 and 18, got %d", cfg.Keys.Digits)
	}
	if cfg.Keys.MaxAttempts <= 0 {
		return fmt.Errorf("keys.maxAttempts must be positive")
	}

	switch cfg.Entitlements.Backend {
	case "file", "redis":
	default:
		return fmt.Errorf("unsupported entitlements.backend %q", cfg.Entitlements.Backend)
	}
	switch cfg.Ledger.Backend {
	case "file", "redis", "memory":
	default:
		return fmt.Errorf("unsupported ledger.backend %q", cfg.Ledger.Backend)
	}
	if cfg.Ledger.Backend == "file" && cfg.Ledger.Path == "" {
		return fmt.Errorf("ledger.path is required for the file backend")
	}
	if len(cfg.Pools.Files) == 0 {
		return fmt.Errorf("pools.files is required")
	}
	switch cfg.Replay.Backend {
	case "", "off", "memory", "redis":
	default:
		return fmt.Errorf("unsupported replay.backend %q", cfg.Replay.Backend)
	}
	if cfg.Replay.TTL != "" {
		if _, err := time.ParseDuration(cfg.Replay.TTL); err != nil {
			return fmt.Errorf("invalid replay.ttl: %w", err)
		}
	}
	return nil
}

// ApplyEnv overlays KEYGATE_* environment variables onto cfg.
func ApplyEnv(cfg *keygateconfig.Config) error {
	setString(&cfg.AdminID, "KEYGATE_ADMIN_ID")
	setString(&cfg.Entitlements.Backend, "KEYGATE_ENTITLEMENTS")
	setString(&cfg.Entitlements.Path, "KEYGATE_KEYS_FILE")
	setString(&cfg.Ledger.Backend, "KEYGATE_LEDGER")
	setString(&cfg.Ledger.Path, "KEYGATE_LEDGER_PATH")
	setString(&cfg.Pools.Dir, "KEYGATE_POOL_DIR")
	setString(&cfg.Redis.Addr, "KEYGATE_REDIS_ADDR")
	setString(&cfg.Redis.Password, "KEYGATE_REDIS_PASSWORD")
	setString(&cfg.Redis.Prefix, "KEYGATE_REDIS_PREFIX")
	setString(&cfg.Sync.URL, "KEYGATE_SYNC_URL")
	setString(&cfg.Sync.Ref, "KEYGATE_SYNC_REF")
	setString(&cfg.API.Addr, "KEYGATE_API_ADDR")
	setString(&cfg.API.Secret, "KEYGATE_API_SECRET")
	setString(&cfg.Log.Level, "KEYGATE_LOG_LEVEL")
	setString(&cfg.Log.Format, "KEYGATE_LOG_FORMAT")
	setString(&cfg.Replay.Backend, "KEYGATE_REPLAY")
	setString(&cfg.Replay.TTL, "KEYGATE_REPLAY_TTL")
	if v := os.Getenv("KEYGATE_POOLS"); v != "" {
		cfg.Pools.Files = splitList(v)
	}
	if v := os.Getenv("KEYGATE_CATEGORIES"); v != "" {
		cfg.Categories = splitList(v)
	}

	var err error
	if cfg.Quota, err = getEnvInt("KEYGATE_QUOTA", cfg.Quota); err != nil {
		return err
	}
	if cfg.Redis.DB, err = getEnvInt("KEYGATE_REDIS_DB", cfg.Redis.DB); err != nil {
		return err
	}
	return nil
}

func setString(dst *string, key string) {
	*dst = getEnv(key, *dst)
}

func splitList(csv string) []string {
	out := []string{}
	for _, part := range strings.Split(csv, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
