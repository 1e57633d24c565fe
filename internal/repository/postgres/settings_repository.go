package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sokodigital/storefront-payments/internal/gateway"
)

// SettingsRepository implements gateway.SettingsStore on the
// gateway_settings table. It is the persisted fallback for gateways whose
// credentials are not supplied through the environment.
type SettingsRepository struct {
	pool *pgxpool.Pool
}

func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

func (r *SettingsRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Get returns the stored settings for a gateway, or nil when none are saved.
func (r *SettingsRepository) Get(ctx context.Context, gatewayName string) (*gateway.Settings, error) {
	s := &gateway.Settings{}
	err := r.db(ctx).QueryRow(ctx,
		`SELECT consumer_key, consumer_secret, short_code, passkey, ipn_id, sandbox, callback_base_url
		 FROM gateway_settings WHERE gateway = $1`, gatewayName,
	).Scan(&s.ConsumerKey, &s.ConsumerSecret, &s.ShortCode, &s.Passkey, &s.IPNID, &s.Sandbox, &s.CallbackBaseURL)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get gateway settings: %w", err)
	}
	return s, nil
}

// Upsert saves or replaces settings for a gateway.
func (r *SettingsRepository) Upsert(ctx context.Context, gatewayName string, s *gateway.Settings) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO gateway_settings (gateway, consumer_key, consumer_secret, short_code, passkey, ipn_id, sandbox, callback_base_url, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		 ON CONFLICT (gateway) DO UPDATE SET
		   consumer_key = EXCLUDED.consumer_key,
		   consumer_secret = EXCLUDED.consumer_secret,
		   short_code = EXCLUDED.short_code,
		   passkey = EXCLUDED.passkey,
		   ipn_id = EXCLUDED.ipn_id,
		   sandbox = EXCLUDED.sandbox,
		   callback_base_url = EXCLUDED.callback_base_url,
		   updated_at = NOW()`,
		gatewayName, s.ConsumerKey, s.ConsumerSecret, s.ShortCode, s.Passkey, s.IPNID, s.Sandbox, s.CallbackBaseURL,
	)
	if err != nil {
		return fmt.Errorf("upsert gateway settings: %w", err)
	}
	return nil
}
