package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang/glog"
	"github.com/joho/godotenv"
)

const (
	StoreBolt   = "bolt"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config holds everything needed to wire the service.
type Config struct {
	BaseURL          string        `env:"RECEIPTSYNC_BASE_URL" validate:"required,url"`
	APIKey           string        `env:"RECEIPTSYNC_API_KEY" validate:"required"`
	ReceiptPath      string        `env:"RECEIPTSYNC_RECEIPT_PATH" validate:"required"`
	DataDir          string        `env:"RECEIPTSYNC_DATA_DIR" validate:"required"`
	Store            string        `env:"RECEIPTSYNC_STORE" validate:"oneof=bolt redis memory"`
	RedisURL         string        `env:"RECEIPTSYNC_REDIS_URL" validate:"required_if=Store redis"`
	VaultPassphrase  string        `env:"RECEIPTSYNC_VAULT_PASSPHRASE"`
	Concurrency      int           `env:"RECEIPTSYNC_CONCURRENCY" validate:"min=1,max=16"`
	MaxAttempts      int           `env:"RECEIPTSYNC_MAX_ATTEMPTS" validate:"min=1,max=10"`
	Timeout          time.Duration `env:"RECEIPTSYNC_TIMEOUT" validate:"gt=0"`
	BundleID         string        `env:"RECEIPTSYNC_BUNDLE_ID"`
	TrustedRootsPath string        `env:"RECEIPTSYNC_TRUSTED_ROOTS"`
	CatalogPath      string        `env:"RECEIPTSYNC_CATALOG"`
	NATSURL          string        `env:"RECEIPTSYNC_NATS_URL" validate:"omitempty,url"`
	NATSSubject      string        `env:"RECEIPTSYNC_NATS_SUBJECT" validate:"required"`
	MaxReceiptBytes  int64         `env:"RECEIPTSYNC_MAX_RECEIPT_BYTES" validate:"min=1"`
	MaxDepth         int           `env:"RECEIPTSYNC_MAX_DEPTH" validate:"min=1,max=64"`
}

// Default returns a config with every optional key at its default.
func Default() Config {
	return Config{
		ReceiptPath:     "receipt.bin",
		DataDir:         filepath.Join("~", ".receiptsync"),
		Store:           StoreBolt,
		Concurrency:     3,
		MaxAttempts:     3,
		Timeout:         30 * time.Second,
		NATSSubject:     "receiptsync.validation",
		MaxReceiptBytes: 4 << 20,
		MaxDepth:        32,
	}
}

// FromEnv reads the process environment, falling back to a .env file in the
// working directory when one exists.
func FromEnv() (Config, error) {
	return Load(".env")
}

// Load builds a Config from the environment and the given dotenv files.
// Process environment wins over file values. Missing files are ignored.
func Load(files ...string) (Config, error) {
	fileEnv := map[string]string{}
	for _, f := range files {
		vals, err := godotenv.Read(f)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return Config{}, fmt.Errorf("failed to read %s: %w", f, err)
		}
		for k, v := range vals {
			if _, ok := fileEnv[k]; !ok {
				fileEnv[k] = v
			}
		}
		glog.V(2).Infof("config: loaded %d values from %s", len(vals), f)
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok && v != ""
	}

	cfg := Default()
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("RECEIPTSYNC_BASE_URL", &cfg.BaseURL)
	str("RECEIPTSYNC_API_KEY", &cfg.APIKey)
	str("RECEIPTSYNC_RECEIPT_PATH", &cfg.ReceiptPath)
	str("RECEIPTSYNC_DATA_DIR", &cfg.DataDir)
	str("RECEIPTSYNC_STORE", &cfg.Store)
	str("RECEIPTSYNC_REDIS_URL", &cfg.RedisURL)
	str("RECEIPTSYNC_VAULT_PASSPHRASE", &cfg.VaultPassphrase)
	num("RECEIPTSYNC_CONCURRENCY", &cfg.Concurrency)
	num("RECEIPTSYNC_MAX_ATTEMPTS", &cfg.MaxAttempts)
	if v, ok := lookup("RECEIPTSYNC_TIMEOUT"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("RECEIPTSYNC_TIMEOUT: %w", err))
		} else {
			cfg.Timeout = d
		}
	}
	str("RECEIPTSYNC_BUNDLE_ID", &cfg.BundleID)
	str("RECEIPTSYNC_TRUSTED_ROOTS", &cfg.TrustedRootsPath)
	str("RECEIPTSYNC_CATALOG", &cfg.CatalogPath)
	str("RECEIPTSYNC_NATS_URL", &cfg.NATSURL)
	str("RECEIPTSYNC_NATS_SUBJECT", &cfg.NATSSubject)
	if v, ok := lookup("RECEIPTSYNC_MAX_RECEIPT_BYTES"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("RECEIPTSYNC_MAX_RECEIPT_BYTES: %w", err))
		} else {
			cfg.MaxReceiptBytes = n
		}
	}
	num("RECEIPTSYNC_MAX_DEPTH", &cfg.MaxDepth)
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}

	dir, err := expandHome(cfg.DataDir)
	if err != nil {
		return Config{}, err
	}
	cfg.DataDir = dir

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var (
	validate   = validator.New()
	configType = reflect.TypeOf(Config{})
)

// Validate checks the struct tags and reports failures by environment key.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fmt.Errorf("%s: failed %q validation", envKey(fe.StructField()), fe.Tag()))
	}
	return errors.Join(out...)
}

func envKey(field string) string {
	if f, ok := configType.FieldByName(field); ok {
		if k := f.Tag.Get("env"); k != "" {
			return k
		}
	}
	return field
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~"+string(filepath.Separator)) {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
