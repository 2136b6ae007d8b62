package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/fiberlab/otdr-persist/internal/extractors"
	"github.com/fiberlab/otdr-persist/internal/models"
	"github.com/fiberlab/otdr-persist/internal/source"
	"github.com/fiberlab/otdr-persist/internal/utils"
)

type loaderStub struct {
	analysis source.Analysis
	err      error
}

func (l *loaderStub) Load(ctx context.Context) (source.Analysis, error) {
	return l.analysis, l.err
}

type storeStub struct {
	lookups   int
	commits   []*models.Graph
	commitErr error
}

func (s *storeStub) FindInstrument(ctx context.Context, serial string) (*models.Instrument, error) {
	s.lookups++
	return nil, nil
}

func (s *storeStub) Commit(ctx context.Context, graph *models.Graph) error {
	if s.commitErr != nil {
		return s.commitErr
	}
	graph.Header.ID = int64(len(s.commits) + 1)
	s.commits = append(s.commits, graph)
	return nil
}

func loadFixture(t *testing.T) *source.Snapshot {
	t.Helper()
	data, err := os.ReadFile("../source/testdata/analysis.yaml")
	require.NoError(t, err)
	snap, err := source.Decode(data)
	require.NoError(t, err)
	return snap
}

func newTestPersister(loader source.Loader, store ResultStore) *Persister {
	return NewPersister(nil, loader, store, clockwork.NewFakeClock())
}

func TestPersistCurrentSession(t *testing.T) {
	store := &storeStub{}
	persister := newTestPersister(&loaderStub{analysis: loadFixture(t)}, store)

	outcome, err := persister.Persist(context.Background())
	require.NoError(t, err)
	require.True(t, outcome.Persisted)
	require.Equal(t, "SPOOL-0042", outcome.FiberID)
	require.Equal(t, int64(1), outcome.HeaderID)
	require.Equal(t, 4, outcome.Results[models.KindSignature])

	require.Equal(t, 1, store.lookups)
	require.Len(t, store.commits, 1)
	require.True(t, store.commits[0].InstrumentIsNew)
}

func TestEmptyIdentifierWritesNothing(t *testing.T) {
	snap := loadFixture(t)
	for i := range snap.Waves {
		for _, d := range []*source.DirectionSnapshot{snap.Waves[i].Top, snap.Waves[i].Bottom, snap.Waves[i].Average} {
			if d != nil && d.Sig != nil {
				d.Sig.IDs[0].Value = ""
			}
		}
	}
	store := &storeStub{}

	err := newTestPersister(&loaderStub{analysis: snap}, store).PersistCurrentSession(context.Background())
	require.NoError(t, err)
	require.Empty(t, store.commits)
	require.Zero(t, store.lookups)
}

func TestEnvironmentUnavailable(t *testing.T) {
	cases := map[string]*loaderStub{
		"loader unavailable": {err: fmt.Errorf("%w: front panel not running", source.ErrUnavailable)},
		"invalid analysis":   {analysis: &source.Snapshot{Valid: false}},
		"no analysis":        {},
	}
	for name, loader := range cases {
		t.Run(name, func(t *testing.T) {
			store := &storeStub{}
			err := newTestPersister(loader, store).PersistCurrentSession(context.Background())
			require.ErrorIs(t, err, ErrEnvironmentUnavailable)
			require.Equal(t, utils.OpSource, utils.OpOf(err))
			require.Empty(t, store.commits)
			require.Zero(t, store.lookups)
		})
	}
}

func TestLoaderFailure(t *testing.T) {
	boom := errors.New("decode failed")
	err := newTestPersister(&loaderStub{err: boom}, &storeStub{}).PersistCurrentSession(context.Background())
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ErrEnvironmentUnavailable)
}

func TestExtractionFaultWritesNothing(t *testing.T) {
	snap := loadFixture(t)
	bad := 9
	snap.Waves[0].Top.Events.MaxLoss = &bad
	store := &storeStub{}

	err := newTestPersister(&loaderStub{analysis: snap}, store).PersistCurrentSession(context.Background())
	require.ErrorIs(t, err, extractors.ErrExtraction)
	require.Equal(t, utils.OpAssemble, utils.OpOf(err))
	require.Empty(t, store.commits)
}

func TestCommitFailure(t *testing.T) {
	dbErr := errors.New("disk I/O error")
	store := &storeStub{commitErr: dbErr}

	outcome, err := newTestPersister(&loaderStub{analysis: loadFixture(t)}, store).Persist(context.Background())
	require.ErrorIs(t, err, dbErr)
	require.Equal(t, utils.OpCommit, utils.OpOf(err))
	require.False(t, outcome.Persisted)
}

func TestNotConfigured(t *testing.T) {
	err := NewPersister(nil, nil, nil, nil).PersistCurrentSession(context.Background())
	require.ErrorIs(t, err, ErrEnvironmentUnavailable)
}
