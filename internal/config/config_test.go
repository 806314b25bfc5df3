package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 5, cfg.Server.CheckoutLimit)
	assert.Equal(t, time.Minute, cfg.Server.CheckoutWindow)
	assert.True(t, cfg.Stripe.UseFake, "development defaults to the fake gateway")
	assert.Equal(t, "gbp", cfg.Payout.Currency)
	assert.Equal(t, "memory", cfg.Notifications.Backend)
	assert.False(t, cfg.HasDatabase())
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, 5, cfg.Database.PingAttempts)
}

func TestLoad_Production(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("STRIPE_FAKE", "")
	t.Setenv("LOG_JSON", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.Stripe.UseFake)
	assert.True(t, cfg.Log.JSON)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CHECKOUT_RATE_LIMIT", "3")
	t.Setenv("CHECKOUT_RATE_WINDOW", "30s")
	t.Setenv("PAYOUT_MAX_ATTEMPTS", "not-a-number")
	t.Setenv("OPERATOR_TOKEN", "tok")
	t.Setenv("DB_MAX_OPEN_CONNS", "10")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,*.su.example.ac.uk")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Server.CheckoutLimit)
	assert.Equal(t, 30*time.Second, cfg.Server.CheckoutWindow)
	assert.Equal(t, 5, cfg.Payout.MaxAttempts, "unparseable values keep the default")
	assert.Equal(t, "tok", cfg.Server.OperatorToken)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, []string{"https://a.example", "*.su.example.ac.uk"}, cfg.Server.AllowedOrigins)
}

func TestParseDatabaseURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		host     string
		port     int
		user     string
		password string
		dbName   string
		sslMode  string
	}{
		{
			name: "full url",
			url:  "postgres://admin:pw@db.internal:6543/tickets?sslmode=require",
			host: "db.internal", port: 6543, user: "admin", password: "pw", dbName: "tickets", sslMode: "require",
		},
		{
			name: "default port and sslmode",
			url:  "postgres://admin@localhost/tickets",
			host: "localhost", port: 5432, user: "admin", dbName: "tickets", sslMode: "disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := parseDatabaseURL(tt.url)
			assert.Equal(t, tt.url, cfg.URL)
			assert.Equal(t, tt.host, cfg.Host)
			assert.Equal(t, tt.port, cfg.Port)
			assert.Equal(t, tt.user, cfg.User)
			assert.Equal(t, tt.password, cfg.Password)
			assert.Equal(t, tt.dbName, cfg.DBName)
			assert.Equal(t, tt.sslMode, cfg.SSLMode)
		})
	}
}
