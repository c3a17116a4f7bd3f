package store

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	params := map[string]any{
		"start_date": "2024-05-01",
		"end_date":   "2024-06-01",
		"row_cap":    10000,
	}

	tests := []struct {
		name     string
		query    string
		params   map[string]any
		style    PlaceholderStyle
		want     string
		wantArgs []any
	}{
		{
			name:     "question style",
			query:    "WHERE d >= :start_date AND d < :end_date LIMIT :row_cap",
			params:   params,
			style:    Question,
			want:     "WHERE d >= ? AND d < ? LIMIT ?",
			wantArgs: []any{"2024-05-01", "2024-06-01", 10000},
		},
		{
			name:     "dollar style",
			query:    "WHERE d >= :start_date AND d < :end_date LIMIT :row_cap",
			params:   params,
			style:    Dollar,
			want:     "WHERE d >= $1 AND d < $2 LIMIT $3",
			wantArgs: []any{"2024-05-01", "2024-06-01", 10000},
		},
		{
			name:     "repeated name binds per occurrence",
			query:    "SELECT :start_date UNION SELECT :start_date",
			params:   params,
			style:    Dollar,
			want:     "SELECT $1 UNION SELECT $2",
			wantArgs: []any{"2024-05-01", "2024-05-01"},
		},
		{
			name:     "single quoted literal untouched",
			query:    "WHERE label = ':start_date' AND d >= :start_date",
			params:   params,
			style:    Question,
			want:     "WHERE label = ':start_date' AND d >= ?",
			wantArgs: []any{"2024-05-01"},
		},
		{
			name:     "escaped quote stays in literal",
			query:    "WHERE label = 'it''s :not_bound' AND d >= :start_date",
			params:   params,
			style:    Question,
			want:     "WHERE label = 'it''s :not_bound' AND d >= ?",
			wantArgs: []any{"2024-05-01"},
		},
		{
			name:   "cast operator passes through",
			query:  "SELECT amount::text FROM monthly",
			params: params,
			style:  Dollar,
			want:   "SELECT amount::text FROM monthly",
		},
		{
			name:   "no placeholders",
			query:  "SELECT 1",
			params: params,
			style:  Question,
			want:   "SELECT 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, args, err := Rebind(tt.query, tt.params, tt.style)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestRebindUnboundParameter(t *testing.T) {
	_, _, err := Rebind("WHERE d >= :missing", map[string]any{}, Question)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":missing")
}

type stubStore struct {
	BaseStore
	dsn string
}

func (s *stubStore) Connect(_ context.Context, dsn string) error { s.dsn = dsn; return nil }
func (s *stubStore) Placeholder() PlaceholderStyle               { return Question }
func (s *stubStore) DriverName() string                          { return "stub" }

var _ Store = (*stubStore)(nil)

func TestRegistry(t *testing.T) {
	Register("stub", func(logger *slog.Logger) Store {
		return &stubStore{BaseStore: BaseStore{Logger: logger}}
	})

	assert.True(t, IsRegistered("stub"))
	assert.Contains(t, ListDrivers(), "stub")

	s, err := New("stub", nil)
	require.NoError(t, err)
	assert.Equal(t, "stub", s.DriverName())
}

func TestRegistryUnknownDriver(t *testing.T) {
	_, err := New("oracle", nil)
	require.Error(t, err)

	var unknownErr *UnknownDriverError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "oracle", unknownErr.Driver)
	assert.NotContains(t, unknownErr.Available, "oracle")
}

func TestRegistryEmptyDriver(t *testing.T) {
	_, err := New("", nil)
	require.Error(t, err)
	var unknownErr *UnknownDriverError
	assert.False(t, errors.As(err, &unknownErr))
}

func TestBaseStoreQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT period, metric_value FROM monthly").
		WillReturnRows(sqlmock.NewRows([]string{"period", "metric_value"}).
			AddRow("2024-05", 1200.0))

	b := &BaseStore{DB: db, Logger: slog.New(slog.DiscardHandler)}
	rows, err := b.Query(context.Background(), "SELECT period, metric_value FROM monthly")
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	require.True(t, rows.Next())
	var period string
	var value float64
	require.NoError(t, rows.Scan(&period, &value))
	assert.Equal(t, "2024-05", period)
	assert.Equal(t, 1200.0, value)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBaseStoreNotConnected(t *testing.T) {
	b := &BaseStore{}

	assert.False(t, b.Connected())
	assert.NoError(t, b.Close())

	_, err := b.Query(context.Background(), "SELECT 1")
	assert.Error(t, err)
	assert.Error(t, b.Ping(context.Background()))
}

func TestBaseStoreClose(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	b := &BaseStore{DB: db}
	assert.True(t, b.Connected())
	require.NoError(t, b.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}
