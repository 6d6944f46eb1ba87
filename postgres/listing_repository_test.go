package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bullionwatch/scraper/scrape"
)

func TestUpsertWritesListing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	defer db.Close()

	mock.ExpectQuery("SELECT id FROM dealers").
		WithArgs("monarchmetals").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectQuery("SELECT id FROM products").
		WithArgs(int64(3), "1 oz Gold American Eagle").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectExec("INSERT INTO listings").
		WithArgs(int64(3), int64(11), 2415.30, "https://example.com/gold-eagle", true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewListingRepository(db)

	err = repo.Upsert(context.Background(), "monarchmetals", "1 oz Gold American Eagle",
		2415.30, "https://example.com/gold-eagle", true)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertUnknownDealerIsConfigError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	defer db.Close()

	mock.ExpectQuery("SELECT id FROM dealers").
		WithArgs("ghostdealer").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := NewListingRepository(db)

	err = repo.Upsert(context.Background(), "ghostdealer", "1 oz Gold Bar", 100, "https://x", true)

	require.Error(t, err)
	assert.True(t, scrape.IsConfigError(err))
	assert.Contains(t, err.Error(), "unknown dealer")
}

func TestUpsertUnknownProductIsConfigError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	defer db.Close()

	mock.ExpectQuery("SELECT id FROM dealers").
		WithArgs("monarchmetals").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectQuery("SELECT id FROM products").
		WithArgs(int64(3), "1 kg Platinum Cube").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := NewListingRepository(db)

	err = repo.Upsert(context.Background(), "monarchmetals", "1 kg Platinum Cube", 100, "https://x", true)

	require.Error(t, err)
	assert.True(t, scrape.IsConfigError(err))
	assert.Contains(t, err.Error(), "unknown product")
}

func TestUpsertTransientFailureIsNotConfigError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	defer db.Close()

	mock.ExpectQuery("SELECT id FROM dealers").
		WithArgs("monarchmetals").
		WillReturnError(errors.New("connection reset by peer"))

	repo := NewListingRepository(db)

	err = repo.Upsert(context.Background(), "monarchmetals", "1 oz Gold Bar", 100, "https://x", true)

	require.Error(t, err)
	assert.False(t, scrape.IsConfigError(err))
}
