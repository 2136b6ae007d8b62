package repo

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/fiberlab/otdr-persist/internal/engine"
	"github.com/fiberlab/otdr-persist/internal/models"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	store, err := OpenSQLStore(ctx, DialectSQLite, "file::memory:?_pragma=foreign_keys(1)&_time_format=sqlite", nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(ctx))
	return store
}

func assembleFixture(t *testing.T, store *SQLStore) *models.Graph {
	t.Helper()
	snap, err := LoadSnapshotFile("../source/testdata/analysis.yaml")
	require.NoError(t, err)
	graph, err := engine.NewAssembler(nil, store).Assemble(context.Background(), snap)
	require.NoError(t, err)
	return graph
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n))
	return n
}

func TestMigrateIsRepeatable(t *testing.T) {
	store := newSQLiteStore(t)
	require.NoError(t, store.Migrate(context.Background()))
	require.Equal(t, 2, countRows(t, store.db, "schema_migrations"))
}

func TestCommitGraph(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	graph := assembleFixture(t, store)
	require.True(t, graph.InstrumentIsNew)
	require.NoError(t, store.Commit(ctx, graph))

	require.NotZero(t, graph.Header.ID)
	for _, r := range graph.Results() {
		require.NotZero(t, r.Base().ID, "%s result without id", r.Kind())
	}

	inst, err := store.FindInstrument(ctx, "OM-1138")
	require.NoError(t, err)
	require.Equal(t, &models.Instrument{SerialNumber: "OM-1138", ModelNumber: "GN8000-SM"}, inst)

	require.Equal(t, 2, countRows(t, store.db, "result_set_label"))
	require.Equal(t, 4, countRows(t, store.db, "signature_result"))
	require.Equal(t, 2, countRows(t, store.db, "attenuation_result"))
	require.Equal(t, 2+3, countRows(t, store.db, "attenuation_wave_result"))
	require.Equal(t, 2, countRows(t, store.db, "mode_field_result"))
	require.Equal(t, 1, countRows(t, store.db, "length_result"))

	var direction string
	var maxLoss sql.NullFloat64
	var maxReflectance sql.NullFloat64
	require.NoError(t, store.db.QueryRow(`
		SELECT s.direction, s.max_loss_location, s.max_reflectance_location
		FROM signature_result s JOIN result r ON r.id = s.result_id
		WHERE s.wavelength = 1550 AND s.direction = 'top'
	`).Scan(&direction, &maxLoss, &maxReflectance))
	require.True(t, maxLoss.Valid)
	require.False(t, maxReflectance.Valid)

	var spoolEnds []string
	rows, err := store.db.Query(`SELECT spool_end FROM result WHERE kind = 'mode_field' ORDER BY id`)
	require.NoError(t, err)
	for rows.Next() {
		var end string
		require.NoError(t, rows.Scan(&end))
		spoolEnds = append(spoolEnds, end)
	}
	require.NoError(t, rows.Close())
	require.Equal(t, []string{"outside", "inside"}, spoolEnds)
}

func TestReinvocationAppendsNewHeader(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	first := assembleFixture(t, store)
	require.NoError(t, store.Commit(ctx, first))

	second := assembleFixture(t, store)
	require.False(t, second.InstrumentIsNew)
	require.NoError(t, store.Commit(ctx, second))

	require.NotEqual(t, first.Header.ID, second.Header.ID)
	require.Equal(t, 2, countRows(t, store.db, "result_set_header"))
	require.Equal(t, 1, countRows(t, store.db, "instrument"))

	sessions, err := store.ListSessions(ctx, "SPOOL-0042", 10)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, second.Header.ID, sessions[0].HeaderID)
	require.Equal(t, time.Date(2024, 3, 14, 9, 18, 55, 0, time.UTC), sessions[0].DateCreated)
	require.Equal(t, "OM-1138", sessions[0].Instrument)
	require.NotNil(t, sessions[0].ReportedLength)
	require.InDelta(t, first.Length.LengthMeasured, *sessions[0].ReportedLength, 1e-9)
	require.Equal(t, map[models.ResultKind]int{
		models.KindSignature:   4,
		models.KindAttenuation: 2,
		models.KindModeField:   2,
		models.KindLength:      1,
	}, sessions[0].ResultCounts)

	none, err := store.ListSessions(ctx, "SPOOL-0000", 10)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestCommitRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	require.NoError(t, store.Commit(ctx, assembleFixture(t, store)))

	// Inserting the same instrument twice violates its primary key.
	graph := assembleFixture(t, store)
	graph.InstrumentIsNew = true
	err := store.Commit(ctx, graph)
	require.Error(t, err)
	require.Zero(t, graph.Header.ID)

	require.Equal(t, 1, countRows(t, store.db, "result_set_header"))
	require.Equal(t, 4, countRows(t, store.db, "signature_result"))
}

func TestCommitWithoutInstrument(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	header := &models.SessionHeader{
		FiberIDString: "SPOOL-1",
		FiberIDTag:    models.DefaultFiberIDTag,
		DateCreated:   time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
	}
	graph := &models.Graph{
		Header: header,
		Attenuation: &models.AttenuationResult{
			ResultBase: models.ResultBase{DateMeasured: header.DateCreated, SetHeader: header},
			Method:     models.AttenuationBackscatter,
			Waves:      []models.AttenuationWave{{Wavelength: 1550, AttenuationCoefficient: models.Float(0.19)}},
		},
	}
	require.NoError(t, store.Commit(ctx, graph))

	var lengthUsed sql.NullFloat64
	require.NoError(t, store.db.QueryRow(`SELECT length_used FROM attenuation_result`).Scan(&lengthUsed))
	require.False(t, lengthUsed.Valid)

	sessions, err := store.ListSessions(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Empty(t, sessions[0].Instrument)
	require.Nil(t, sessions[0].ReportedLength)
}

func TestFindInstrumentMissing(t *testing.T) {
	inst, err := newSQLiteStore(t).FindInstrument(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, inst)
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{dialect: DialectPostgres}
	require.Equal(t, "SELECT $1, $2", pg.rebind("SELECT ?, ?"))
	lite := &SQLStore{dialect: DialectSQLite}
	require.Equal(t, "SELECT ?, ?", lite.rebind("SELECT ?, ?"))
}

func TestSplitSQLStatements(t *testing.T) {
	stmts := splitSQLStatements("-- header\nCREATE TABLE a (\n  id INTEGER\n);\n\nALTER TABLE a ADD COLUMN b REAL;\n")
	require.Len(t, stmts, 2)
	require.Equal(t, "ALTER TABLE a ADD COLUMN b REAL", stmts[1])
}

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("otdr"),
		postgres.WithUsername("otdr"),
		postgres.WithPassword("otdr"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, pgContainer)
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://otdr:otdr@%s:%s/otdr?sslmode=disable", host, port.Port())

	store, err := OpenSQLStore(ctx, DialectPostgres, dsn, nil)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx))

	first := assembleFixture(t, store)
	require.NoError(t, store.Commit(ctx, first))
	second := assembleFixture(t, store)
	require.False(t, second.InstrumentIsNew)
	require.NoError(t, store.Commit(ctx, second))

	sessions, err := store.ListSessions(ctx, "SPOOL-0042", 5)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, 4, sessions[0].ResultCounts[models.KindSignature])
	require.True(t, sessions[0].DateCreated.Equal(first.Header.DateCreated))
}
