package settings

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	s := Default()
	s.AlationURL = "https://acme.alationcloud.com"
	s.RefreshToken = "refresh-secret"
	s.UserID = "42"
	return s
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr []string
	}{
		{name: "valid", mutate: func(*Settings) {}},
		{
			name:    "missing everything",
			mutate:  func(s *Settings) { *s = *Default() },
			wantErr: []string{"alation_url is required", "refresh_token is required", "user_id is required"},
		},
		{
			name:    "bad url",
			mutate:  func(s *Settings) { s.AlationURL = "not a url" },
			wantErr: []string{"alation_url must be a valid URL"},
		},
		{
			name:    "non numeric user id",
			mutate:  func(s *Settings) { s.UserID = "bob" },
			wantErr: []string{"user_id must be numeric"},
		},
		{
			name:    "decimal user id",
			mutate:  func(s *Settings) { s.UserID = "1.5" },
			wantErr: []string{"user_id must be numeric"},
		},
		{
			name:    "signed user id",
			mutate:  func(s *Settings) { s.UserID = "-7" },
			wantErr: []string{"user_id must be numeric"},
		},
		{
			name:    "plus sign user id",
			mutate:  func(s *Settings) { s.UserID = "+3" },
			wantErr: []string{"user_id must be numeric"},
		},
		{
			name:    "negative rate limit",
			mutate:  func(s *Settings) { s.RateLimit = -1 },
			wantErr: []string{"rate_limit must not be negative"},
		},
		{
			name:    "bad telemetry",
			mutate:  func(s *Settings) { s.Telemetry.Logging.Level = "loud" },
			wantErr: []string{"invalid telemetry settings", "invalid log level"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			err := s.Validate()
			if len(tt.wantErr) == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestValidationErrorFields(t *testing.T) {
	s := validSettings()
	s.UserID = ""

	var verr *ValidationError
	require.ErrorAs(t, s.Validate(), &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "user_id", verr.Fields[0].Field)
	assert.Equal(t, "required", verr.Fields[0].Tag)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apt", "settings.yaml")

	s := validSettings()
	s.Timeout = 10 * time.Second
	require.NoError(t, Save(path, s))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "timeout: 10s")
	assert.NotContains(t, string(data), "access")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, s.AlationURL, loaded.AlationURL)
	assert.Equal(t, s.RefreshToken, loaded.RefreshToken)
	assert.Equal(t, s.UserID, loaded.UserID)
	assert.Equal(t, 10*time.Second, loaded.Timeout)
	assert.Equal(t, 5.0, loaded.RateLimit)
	require.NoError(t, loaded.Validate())
}

func TestSaveRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	s := validSettings()
	s.AlationURL = ""
	require.Error(t, Save(path, s))

	_, err := os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist), "invalid settings must not be written")
}

func TestLoadMissingAndPartial(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "nope.yaml"))
	assert.ErrorIs(t, err, ErrNotFound)

	partial := filepath.Join(dir, "partial.yaml")
	require.NoError(t, os.WriteFile(partial, []byte("alation_url: https://x.example.com\ntelemetry:\n  logging:\n    level: debug\n"), 0o600))

	s, err := Load(partial)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, s.Timeout)
	assert.Equal(t, "debug", s.Telemetry.Logging.Level)
	assert.Equal(t, "console", s.Telemetry.Logging.Format, "unset telemetry values keep their defaults")
	assert.Error(t, s.Validate())

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("alation_url: [unterminated"), 0o600))
	_, err = Load(broken)
	assert.Error(t, err)
}

func TestSetAndRedacted(t *testing.T) {
	s := validSettings()

	require.NoError(t, s.Set("alation_url", " https://other.example.com "))
	require.NoError(t, s.Set("timeout", "45s"))
	require.NoError(t, s.Set("rate_limit", "2.5"))
	assert.Equal(t, "https://other.example.com", s.AlationURL)
	assert.Equal(t, 45*time.Second, s.Timeout)
	assert.Equal(t, 2.5, s.RateLimit)

	assert.Error(t, s.Set("timeout", "soon"))
	err := s.Set("colour", "blue")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "alation_url"))

	r := s.Redacted()
	assert.Equal(t, maskedSecret, r.RefreshToken)
	assert.Equal(t, "refresh-secret", s.RefreshToken, "source is untouched")

	cfg := s.ClientConfig()
	assert.Equal(t, "42", cfg.UserID)
	assert.Equal(t, 45*time.Second, cfg.Timeout)
}
