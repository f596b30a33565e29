//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/attendance/internal/clock"
	"example.com/attendance/internal/domain"
)

var kst = time.FixedZone("KST", 9*3600)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	ctx := context.Background()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("attendance"),
		postgrescontainer.WithUsername("attendance"),
		postgrescontainer.WithPassword("attendance"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	repo, err := Open(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	// A second run finds nothing to apply.
	require.NoError(t, Migrate(connStr))
	return repo
}

func TestRepositorySessionsAndRecords(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	checkIn := time.Date(2024, time.January, 1, 23, 0, 0, 0, kst)
	require.NoError(t, repo.OpenSession(ctx, "u", checkIn))
	require.ErrorIs(t, repo.OpenSession(ctx, "u", checkIn), domain.ErrSessionAlreadyOpen)

	got, ok, err := repo.CloseSession(ctx, "u")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, checkIn.Equal(got))

	records, err := domain.SplitRecords("u", got.In(kst), time.Date(2024, time.January, 2, 1, 0, 0, 0, kst))
	require.NoError(t, err)
	require.NoError(t, repo.InsertRecords(ctx, records))

	jan1 := clock.NewDate(2024, time.January, 1)
	jan2 := clock.NewDate(2024, time.January, 2)
	totals, err := repo.DailyTotals(ctx, "u", []clock.Date{jan1, jan2, jan2.AddDays(1)})
	require.NoError(t, err)
	require.Equal(t, map[clock.Date]int64{jan1: 3599, jan2: 3600}, totals)

	users, err := repo.DistinctUsers(ctx, 2024, time.January)
	require.NoError(t, err)
	require.Equal(t, []string{"u"}, users)

	purged, err := repo.PurgeBefore(ctx, jan2)
	require.NoError(t, err)
	require.EqualValues(t, 1, purged)

	total, err := repo.SumDuration(ctx, "u", jan2)
	require.NoError(t, err)
	require.EqualValues(t, 3600, total)
}

func TestRepositoryTriggerState(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	_, ok, err := repo.LastFired(ctx, "monthly-final")
	require.NoError(t, err)
	require.False(t, ok)

	day := clock.NewDate(2024, time.February, 1)
	require.NoError(t, repo.MarkFired(ctx, "monthly-final", day))
	got, ok, err := repo.LastFired(ctx, "monthly-final")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, day, got)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
