package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/cassiomorais/turnkey/internal/domain/giftcard"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *[]byte:
			*p = r.values[i].([]byte)
		case *int:
			*p = r.values[i].(int)
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

type fakeDB struct {
	row      fakeRow
	tag      string
	lastSQL  string
	lastArgs []any
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.lastSQL, f.lastArgs = sql, args
	return f.row
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.lastSQL, f.lastArgs = sql, args
	return pgconn.NewCommandTag(f.tag), nil
}

func TestMerchantConfigRepository_Get(t *testing.T) {
	raw, err := json.Marshal(giftcard.MerchantConfig{CompanyName: "Acme", Currency: "USD"})
	require.NoError(t, err)

	db := &fakeDB{row: fakeRow{values: []any{raw}}}
	repo := NewMerchantConfigRepository(db)

	cfg, err := repo.Get(context.Background(), "user-1", true)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "Acme", cfg.CompanyName)
	assert.Equal(t, []any{"user-1", true}, db.lastArgs)
}

func TestMerchantConfigRepository_Get_NotFound(t *testing.T) {
	repo := NewMerchantConfigRepository(&fakeDB{row: fakeRow{err: pgx.ErrNoRows}})

	cfg, err := repo.Get(context.Background(), "user-1", false)
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestMerchantConfigRepository_Upsert(t *testing.T) {
	db := &fakeDB{row: fakeRow{values: []any{3}}}
	repo := NewMerchantConfigRepository(db)

	rev, err := repo.Upsert(context.Background(), "user-1", false, &giftcard.MerchantConfig{CompanyName: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, 3, rev)
	assert.Contains(t, db.lastSQL, "ON CONFLICT (merchant_id, test_mode)")
	assert.JSONEq(t, `{"companyName":"Acme","currency":"","logo":"","programId":"","claimLink":"","linkToPrivacy":"","linkToTerms":"","termsAndConditions":"","giftEmailReplyToAddress":"","stripeUserId":""}`,
		string(db.lastArgs[2].([]byte)))
}

func TestIdempotencyRepository_GetMissing(t *testing.T) {
	repo := NewIdempotencyRepository(&fakeDB{row: fakeRow{err: pgx.ErrNoRows}})

	entry, err := repo.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestIdempotencyRepository_Cleanup(t *testing.T) {
	repo := NewIdempotencyRepository(&fakeDB{tag: "DELETE 4"})

	n, err := repo.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
