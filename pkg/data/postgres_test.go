package data

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const pgTestEnvVar = "SBMI_PG_TEST"

func setupPostgresDSN(t *testing.T) string {
	t.Helper()
	if os.Getenv(pgTestEnvVar) == "" {
		t.Skipf("%s not set, skipping postgres test", pgTestEnvVar)
	}

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("sbmi"),
		postgres.WithUsername("sbmi"),
		postgres.WithPassword("sbmi"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestPostgres_RoundTrip(t *testing.T) {
	dsn := setupPostgresDSN(t)
	require.Equal(t, "postgres", DriverName(dsn))

	require.NoError(t, Init(dsn))
	require.NoError(t, Init(dsn))

	db, err := GetDB(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ix := testIndex(t, "RBMI")
	_, err = SaveReference(db, KindLMS, "pg", ix)
	require.NoError(t, err)

	got, err := LoadIndex(db, "RBMI")
	require.NoError(t, err)
	assert.Equal(t, ix.Rows(), got.Rows())
	assert.Equal(t, ix.Levels(), got.Levels())

	run := NewBatchRun("RBMI", "in.csv", testBatchResult())
	require.NoError(t, SaveBatchRun(db, run))
	failures, err := GetBatchFailures(db, run.ID)
	require.NoError(t, err)
	assert.Len(t, failures, 2)

	state, err := GetDataState(db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), state["reference"])

	require.NoError(t, DeleteReference(db, "RBMI"))
	assert.ErrorIs(t, DeleteReference(db, "RBMI"), ErrNotFound)
}
