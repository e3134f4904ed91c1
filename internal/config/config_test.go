package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFunc(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(envFunc(map[string]string{"JWT_SECRET": "s3cret"}))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, "postgres", cfg.DBType)
	assert.Empty(t, cfg.DatabaseURL)
	assert.True(t, cfg.EmbeddedPostgres)
	assert.Equal(t, 5*time.Second, cfg.DBConnectTimeout)
	assert.Equal(t, 60*time.Second, cfg.EmbeddedStartTimeout)
	assert.Equal(t, 10*time.Second, cfg.StorageTimeout)
	assert.Equal(t, 1000, cfg.MessageRetention)
	assert.Equal(t, 500, cfg.MaxMessageLength)
	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.Equal(t, 60, cfg.RateLimitPerMinute)
	assert.False(t, cfg.IsProduction())
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(envFunc(map[string]string{
		"ENV":                    "production",
		"PORT":                   "9000",
		"JWT_SECRET":             "s3cret",
		"TOKEN_TTL":              "2h",
		"ALLOWED_ORIGINS":        "http://a.example, http://b.example,",
		"EMBEDDED_POSTGRES":      "false",
		"EMBEDDED_POSTGRES_PORT": "54329",
		"STORAGE_TIMEOUT":        "3",
		"MESSAGE_RETENTION":      "0",
		"RATE_LIMIT_PER_MINUTE":  "10",
	}))
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, ":9000", cfg.Addr())
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins)
	assert.False(t, cfg.EmbeddedPostgres)
	assert.Equal(t, uint32(54329), cfg.EmbeddedPostgresPort)
	assert.Equal(t, 3*time.Second, cfg.StorageTimeout)
	assert.Equal(t, 0, cfg.MessageRetention)
	assert.Equal(t, 10, cfg.RateLimitPerMinute)
}

func TestDatabaseURL(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{
			name: "explicit url wins",
			vars: map[string]string{"DATABASE_URL": "postgres://u:p@db/chat", "DB_HOST": "ignored"},
			want: "postgres://u:p@db/chat",
		},
		{
			name: "built from parts",
			vars: map[string]string{"DB_HOST": "db", "DB_NAME": "chat", "DB_USER": "u", "DB_PASSWORD": "p"},
			want: "postgres://u:p@db:5432/chat?sslmode=disable",
		},
		{
			name: "incomplete parts",
			vars: map[string]string{"DB_HOST": "db"},
			want: "",
		},
		{
			name: "sqlite path",
			vars: map[string]string{"DB_TYPE": "sqlite3", "SQLITE_PATH": "/tmp/chat.db"},
			want: "/tmp/chat.db",
		},
		{
			name: "sqlite default path",
			vars: map[string]string{"DB_TYPE": "sqlite3"},
			want: "chathub.db",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.vars["JWT_SECRET"] = "s3cret"
			cfg, err := FromEnv(envFunc(tt.vars))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.DatabaseURL)
		})
	}
}

func TestFromEnvErrors(t *testing.T) {
	_, err := FromEnv(envFunc(map[string]string{}))
	assert.ErrorIs(t, err, ErrMissingSecret)

	_, err = FromEnv(envFunc(map[string]string{
		"JWT_SECRET":         "s3cret",
		"DB_TYPE":            "mysql",
		"STORAGE_TIMEOUT":    "soon",
		"MAX_MESSAGE_LENGTH": "-1",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_TYPE")
	assert.Contains(t, err.Error(), "STORAGE_TIMEOUT")
	assert.Contains(t, err.Error(), "MAX_MESSAGE_LENGTH")
}

func TestFromEnvRejectsEmptyOriginList(t *testing.T) {
	for _, origins := range []string{",", " , ,"} {
		_, err := FromEnv(envFunc(map[string]string{
			"JWT_SECRET":      "s3cret",
			"ALLOWED_ORIGINS": origins,
		}))
		require.Error(t, err, "origins %q", origins)
		assert.Contains(t, err.Error(), "ALLOWED_ORIGINS")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "30", want: 30 * time.Second},
		{in: "1m30s", want: 90 * time.Second},
		{in: "0", want: 0},
		{in: "-5", wantErr: true},
		{in: "-1s", wantErr: true},
		{in: "later", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
