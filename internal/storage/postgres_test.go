package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/ria-tools/riawatch/internal/scraper"
)

func testRecord() scraper.ListingRecord {
	return scraper.ListingRecord{
		URL:      "https://auto.ria.com/uk/auto_audi_q7_12345.html",
		Title:    "Audi Q7 2019",
		PriceUSD: pgtype.Int8{Int64: 35500, Valid: true},
		Odometer: pgtype.Int8{Int64: 95000, Valid: true},
		Username: pgtype.Text{String: "Олег", Valid: true},
	}
}

func newMockedStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewWithConn(mock)
	require.NoError(t, err)
	return store, mock
}

func TestStore_InsertFreshRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)
	rec := testRecord()
	mock.ExpectExec("INSERT INTO cars").
		WithArgs(
			rec.URL, rec.Title, rec.PriceUSD, rec.Odometer, rec.Username,
			rec.PhoneNumber, rec.ImageURL, rec.ImagesCount, rec.CarNumber, rec.CarVIN,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	outcome, err := store.Insert(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, scraper.Inserted, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InsertDuplicateSkips(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)
	rec := testRecord()
	// ON CONFLICT DO NOTHING absorbs the insert: zero rows affected.
	mock.ExpectExec("INSERT INTO cars").
		WithArgs(
			rec.URL, rec.Title, rec.PriceUSD, rec.Odometer, rec.Username,
			rec.PhoneNumber, rec.ImageURL, rec.ImagesCount, rec.CarNumber, rec.CarVIN,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	outcome, err := store.Insert(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, scraper.SkippedDuplicate, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InsertConnectivityError(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)
	rec := testRecord()
	mock.ExpectExec("INSERT INTO cars").
		WithArgs(
			rec.URL, rec.Title, rec.PriceUSD, rec.Odometer, rec.Username,
			rec.PhoneNumber, rec.ImageURL, rec.ImagesCount, rec.CarNumber, rec.CarVIN,
		).
		WillReturnError(errors.New("connection refused"))

	_, err := store.Insert(context.Background(), rec)
	require.ErrorContains(t, err, "insert listing")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_EnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS cars").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Ping(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)
	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	require.ErrorContains(t, store.Ping(context.Background()), "ping postgres")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithConn_RequiresConnection(t *testing.T) {
	t.Parallel()

	_, err := NewWithConn(nil)
	require.Error(t, err)
}
