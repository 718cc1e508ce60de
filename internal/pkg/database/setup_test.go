package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoMigrate_NoForeignKeys(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	tables := []string{"billing_prices", "billing_products", "billing_subscriptions", "media_jobs", "chats"}
	for _, table := range tables {
		t.Run(table, func(t *testing.T) {
			var ddl string
			require.NoError(t, db.Raw("SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&ddl).Error)
			require.NotEmpty(t, ddl)
			assert.NotContains(t, strings.ToUpper(ddl), "REFERENCES")
		})
	}
}

func TestAutoMigrate_PricesWithoutMirroredProduct(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	require.NoError(t, db.Exec("PRAGMA foreign_keys = ON").Error)

	err = db.Exec(`INSERT INTO billing_prices (provider, provider_price_id, provider_product_id, currency, active)
		VALUES ('stripe', 'price_1', 'prod_unlisted', 'usd', true)`).Error
	assert.NoError(t, err)
}

func TestGormConfig(t *testing.T) {
	assert.True(t, gormConfig().DisableForeignKeyConstraintWhenMigrating)
}
