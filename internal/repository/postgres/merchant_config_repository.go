package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cassiomorais/turnkey/internal/domain/giftcard"
	"github.com/jackc/pgx/v5"
)

// MerchantConfigRepository persists one turnkey config document per merchant
// and mode.
type MerchantConfigRepository struct {
	db DBTX
}

func NewMerchantConfigRepository(db DBTX) *MerchantConfigRepository {
	return &MerchantConfigRepository{db: db}
}

// Get returns nil when the merchant has never stored a config.
func (r *MerchantConfigRepository) Get(ctx context.Context, merchantID string, testMode bool) (*giftcard.MerchantConfig, error) {
	var raw []byte
	err := r.db.QueryRow(ctx,
		`SELECT config FROM merchant_configs WHERE merchant_id = $1 AND test_mode = $2`,
		merchantID, testMode,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get merchant config: %w", err)
	}

	var cfg giftcard.MerchantConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode merchant config: %w", err)
	}
	return &cfg, nil
}

// Upsert stores the config and returns its new revision.
func (r *MerchantConfigRepository) Upsert(ctx context.Context, merchantID string, testMode bool, cfg *giftcard.MerchantConfig) (int, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return 0, fmt.Errorf("encode merchant config: %w", err)
	}

	var revision int
	err = r.db.QueryRow(ctx,
		`INSERT INTO merchant_configs (merchant_id, test_mode, config)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (merchant_id, test_mode) DO UPDATE
		 SET config = EXCLUDED.config, revision = merchant_configs.revision + 1, updated_at = NOW()
		 RETURNING revision`,
		merchantID, testMode, raw,
	).Scan(&revision)
	if err != nil {
		return 0, fmt.Errorf("upsert merchant config: %w", err)
	}
	return revision, nil
}
