package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "test",
			Password: "test",
			Database: "test_db",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Gateways: GatewaysConfig{
			CallbackBaseURL: "https://pay.example.com",
			HTTPTimeout:     30 * time.Second,
		},
		Worker: WorkerConfig{
			StaleAfter: 10 * time.Minute,
			LockTTL:    30 * time.Second,
		},
	}
}

func TestConfig_Validate_Success(t *testing.T) {
	cfg := validConfig()

	err := cfg.Validate()
	assert.NoError(t, err)
}

func TestConfig_Validate_InvalidServerPort(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"port too low", 0},
		{"port negative", -1},
		{"port too high", 99999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Server.Port = tt.port

			err := cfg.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "server.port")
		})
	}
}

func TestConfig_Validate_InvalidReadTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ReadTimeout = 0

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "read_timeout")
}

func TestConfig_Validate_MissingDatabaseHost(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Host = ""

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database.host")
}

func TestConfig_Validate_MissingCallbackBaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.Gateways.CallbackBaseURL = ""

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "callback_base_url")
}

func TestConfig_Validate_InvalidGatewayTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Gateways.HTTPTimeout = 0

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "gateways.http_timeout")
}

func TestConfig_Validate_InvalidStaleAfter(t *testing.T) {
	cfg := validConfig()
	cfg.Worker.StaleAfter = 0

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "worker.stale_after")
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := &Config{}

	err := cfg.Validate()
	require.Error(t, err)

	errStr := err.Error()
	assert.Contains(t, errStr, "server.port")
	assert.Contains(t, errStr, "read_timeout")
	assert.Contains(t, errStr, "database.host")
	assert.Contains(t, errStr, "redis.port")
	assert.Contains(t, errStr, "callback_base_url")
	assert.Contains(t, errStr, "worker.lock_ttl")
}

func TestDatabaseConfig_DatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.example.com",
		Port:     5432,
		User:     "app_user",
		Password: "secret",
		Database: "payments_db",
		SSLMode:  "require",
	}

	dsn := cfg.DatabaseDSN()
	assert.Equal(t, "host=db.example.com port=5432 user=app_user password=secret dbname=payments_db sslmode=require", dsn)
}

func TestRedisConfig_RedisAddr(t *testing.T) {
	cfg := RedisConfig{Host: "redis.example.com", Port: 6379}
	assert.Equal(t, "redis.example.com:6379", cfg.RedisAddr())
}

func TestGatewaysConfig_Fields(t *testing.T) {
	cfg := GatewaysConfig{
		CallbackBaseURL: "https://pay.example.com",
		HTTPTimeout:     20 * time.Second,
		Mpesa: MpesaConfig{
			ConsumerKey:    "ck",
			ConsumerSecret: "cs",
			ShortCode:      "174379",
			Passkey:        "pk",
			Sandbox:        true,
		},
		PayPal: PayPalConfig{
			ClientID:     "id",
			ClientSecret: "secret",
		},
		Pesapal: PesapalConfig{
			ConsumerKey:    "pck",
			ConsumerSecret: "pcs",
			IPNID:          "ipn-123",
		},
	}

	assert.Equal(t, "174379", cfg.Mpesa.ShortCode)
	assert.True(t, cfg.Mpesa.Sandbox)
	assert.Equal(t, "id", cfg.PayPal.ClientID)
	assert.Equal(t, "ipn-123", cfg.Pesapal.IPNID)
}
