package main

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chemdash/internal/infrastructure/storage/fixture"
)

func TestQuantityColumns(t *testing.T) {
	qty, raw := quantityColumns("1,200.5")
	assert.True(t, decimal.RequireFromString("1200.5").Equal(qty.(decimal.Decimal)))
	assert.Nil(t, raw)

	qty, raw = quantityColumns("tbd")
	assert.Nil(t, qty)
	assert.Equal(t, "tbd", raw)

	qty, raw = quantityColumns(nil)
	assert.Nil(t, qty)
	assert.Nil(t, raw)
}

func TestInsertBuilders(t *testing.T) {
	ds := fixture.Demo(time.Date(2026, time.October, 14, 9, 0, 0, 0, time.UTC), time.UTC)

	sql, args, err := balancesInsert(ds.Balances).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "INSERT INTO stock_balances (product_id,location,quantity,quantity_raw) VALUES ($1,$2,$3,$4)")
	assert.Contains(t, sql, "ON CONFLICT (product_id, location) DO UPDATE")
	assert.Len(t, args, 4*len(ds.Balances))

	sql, args, err = movementsInsert(ds.Movements).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "INSERT INTO stock_movements")
	assert.Contains(t, sql, "ON CONFLICT (id) DO NOTHING")
	assert.Len(t, args, 9*len(ds.Movements))
}

func TestStatements(t *testing.T) {
	ds := fixture.Demo(time.Now(), time.UTC)

	assert.Len(t, statements(ds, false), 2)
	assert.Empty(t, statements(fixture.DataSet{}, false))

	stmts := statements(ds, true)
	require.Len(t, stmts, 4)
	sql, _, err := stmts[0].ToSql()
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM stock_movements", sql)
}
