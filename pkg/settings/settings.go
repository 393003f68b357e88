// Package settings loads, validates and persists the user's connection
// settings and watches the settings file for changes.
package settings

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
	"gopkg.in/yaml.v3"

	"github.com/catalogtools/apt/pkg/alation"
	"github.com/catalogtools/apt/pkg/telemetry"
)

const (
	appDir       = "apt"
	fileName     = "settings.yaml"
	cacheName    = "cache.db"
	fileMode     = 0o600
	dirMode      = 0o700
	maskedSecret = "********"
)

// ErrNotFound is returned by Load when the settings file does not exist.
var ErrNotFound = errors.New("settings file not found")

// Settings is the persisted configuration. The access token is never part
// of it.
type Settings struct {
	AlationURL   string            `yaml:"alation_url" validate:"required,url"`
	RefreshToken string            `yaml:"refresh_token" validate:"required"`
	UserID       string            `yaml:"user_id" validate:"required,number"`
	Timeout      time.Duration     `yaml:"timeout,omitempty" validate:"gte=0"`
	RateLimit    float64           `yaml:"rate_limit,omitempty" validate:"gte=0"`
	CachePath    string            `yaml:"cache_path,omitempty"`
	Telemetry    *telemetry.Config `yaml:"telemetry,omitempty"`
}

// FieldError describes one invalid setting.
type FieldError struct {
	Field string
	Tag   string
	Value string
}

func (e FieldError) Error() string {
	switch e.Tag {
	case "required":
		return fmt.Sprintf("%s is required", e.Field)
	case "url":
		return fmt.Sprintf("%s must be a valid URL (got %q)", e.Field, e.Value)
	case "number":
		return fmt.Sprintf("%s must be numeric (got %q)", e.Field, e.Value)
	case "gte":
		return fmt.Sprintf("%s must not be negative", e.Field)
	default:
		return fmt.Sprintf("%s failed %s validation", e.Field, e.Tag)
	}
}

// ValidationError collects every invalid setting.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Error()
	}
	return "invalid settings: " + strings.Join(msgs, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Default returns settings with every optional value filled in.
func Default() *Settings {
	return &Settings{
		Timeout:   30 * time.Second,
		RateLimit: 5,
		Telemetry: telemetry.DefaultConfig(),
	}
}

// DefaultPath is $XDG_CONFIG_HOME/apt/settings.yaml or its platform
// equivalent.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(dir, appDir, fileName), nil
}

// DefaultCachePath is the platform cache directory's apt/cache.db.
func DefaultCachePath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate cache directory: %w", err)
	}
	return filepath.Join(dir, appDir, cacheName), nil
}

// Load reads the settings file at path on top of Default. The result is not
// validated.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	s := Default()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}
	s.applyDefaults()
	return s, nil
}

// Save validates s and writes it to path with owner-only permissions.
func Save(path string, s *Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+fileName+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set settings permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close settings: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace settings: %w", err)
	}
	return nil
}

// Validate checks the required connection values and the telemetry block.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("failed to validate settings: %w", err)
		}
		out := &ValidationError{}
		for _, fe := range verrs {
			out.Fields = append(out.Fields, FieldError{
				Field: fe.Field(),
				Tag:   fe.Tag(),
				Value: fmt.Sprint(fe.Value()),
			})
		}
		return out
	}

	if s.Telemetry != nil {
		if err := s.Telemetry.Validate(); err != nil {
			return fmt.Errorf("invalid telemetry settings: %w", err)
		}
	}
	return nil
}

// ClientConfig maps the settings onto the REST client configuration.
func (s *Settings) ClientConfig() alation.Config {
	return alation.Config{
		BaseURL:      s.AlationURL,
		UserID:       s.UserID,
		RefreshToken: s.RefreshToken,
		Timeout:      s.Timeout,
		RateLimit:    s.RateLimit,
	}
}

// TelemetryConfig returns the telemetry block, or the defaults when unset.
func (s *Settings) TelemetryConfig() *telemetry.Config {
	if s.Telemetry == nil {
		return telemetry.DefaultConfig()
	}
	return s.Telemetry
}

// Redacted returns a copy safe for display, with the refresh token masked.
func (s *Settings) Redacted() *Settings {
	cp := *s
	if cp.RefreshToken != "" {
		cp.RefreshToken = maskedSecret
	}
	return &cp
}

// Keys lists the names accepted by Set.
var Keys = []string{"alation_url", "refresh_token", "user_id", "timeout", "rate_limit", "cache_path"}

// Set assigns one setting by its file key.
func (s *Settings) Set(key, value string) error {
	switch key {
	case "alation_url":
		s.AlationURL = strings.TrimSpace(value)
	case "refresh_token":
		s.RefreshToken = strings.TrimSpace(value)
	case "user_id":
		s.UserID = strings.TrimSpace(value)
	case "timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid timeout %q: %w", value, err)
		}
		s.Timeout = d
	case "rate_limit":
		r, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid rate_limit %q: %w", value, err)
		}
		s.RateLimit = r
	case "cache_path":
		s.CachePath = value
	default:
		return fmt.Errorf("unknown setting %q (want one of %s)", key, strings.Join(Keys, ", "))
	}
	return nil
}

func (s *Settings) applyDefaults() {
	def := Default()
	if s.Timeout == 0 {
		s.Timeout = def.Timeout
	}
	if s.RateLimit == 0 {
		s.RateLimit = def.RateLimit
	}
	if s.Telemetry == nil {
		s.Telemetry = def.Telemetry
	}
}
