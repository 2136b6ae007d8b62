package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/fiberlab/otdr-persist/internal/engine"
	"github.com/fiberlab/otdr-persist/internal/metrics"
	"github.com/fiberlab/otdr-persist/internal/models"
	"github.com/fiberlab/otdr-persist/internal/source"
	"github.com/fiberlab/otdr-persist/internal/utils"
)

// ErrEnvironmentUnavailable is returned when no valid analysis can be read.
var ErrEnvironmentUnavailable = errors.New("measurement environment unavailable")

// ResultStore defines the storage operations required to persist a session.
type ResultStore interface {
	engine.InstrumentFinder
	Commit(ctx context.Context, graph *models.Graph) error
}

// Outcome describes one persist invocation.
type Outcome struct {
	Persisted bool
	FiberID   string
	HeaderID  int64
	Results   map[models.ResultKind]int
}

// Persister saves the current front panel session to the results database.
type Persister struct {
	logger    *slog.Logger
	loader    source.Loader
	store     ResultStore
	assembler *engine.Assembler
	clock     clockwork.Clock
}

// NewPersister constructs a Persister. A nil clock uses the wall clock.
func NewPersister(logger *slog.Logger, loader source.Loader, store ResultStore, clock clockwork.Clock) *Persister {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Persister{
		logger:    logger,
		loader:    loader,
		store:     store,
		assembler: engine.NewAssembler(logger, store),
		clock:     clock,
	}
}

// PersistCurrentSession reads the current analysis and commits it in one
// transaction. A session without a primary sample identifier is skipped
// without error.
func (p *Persister) PersistCurrentSession(ctx context.Context) error {
	_, err := p.Persist(ctx)
	return err
}

// Persist is PersistCurrentSession with a report of what was written.
func (p *Persister) Persist(ctx context.Context) (Outcome, error) {
	start := p.clock.Now()
	outcome, err := p.persist(ctx)
	duration := p.clock.Since(start)

	switch {
	case err != nil:
		metrics.ObserveSession(duration, metrics.OutcomeError)
		p.logger.Error("persist failed", slog.Any("error", err), slog.Duration("duration", duration))
	case !outcome.Persisted:
		metrics.ObserveSession(duration, metrics.OutcomeSkipped)
	default:
		metrics.ObserveSession(duration, metrics.OutcomePersisted)
		metrics.ObserveResults(outcome.Results)
		p.logger.Info("session persisted",
			slog.String("fiber_id", outcome.FiberID),
			slog.Int64("header_id", outcome.HeaderID),
			slog.Any("results", outcome.Results),
			slog.Duration("duration", duration),
		)
	}
	return outcome, err
}

func (p *Persister) persist(ctx context.Context) (Outcome, error) {
	if p.loader == nil || p.store == nil {
		return Outcome{}, utils.NewAppError(utils.OpSource, "persister not configured", ErrEnvironmentUnavailable)
	}

	analysis, err := p.loader.Load(ctx)
	if err != nil {
		if errors.Is(err, source.ErrUnavailable) {
			return Outcome{}, utils.NewAppError(utils.OpSource, "no analysis available", fmt.Errorf("%w: %w", ErrEnvironmentUnavailable, err))
		}
		return Outcome{}, utils.NewAppError(utils.OpSource, "load analysis", err)
	}
	if analysis == nil || !analysis.ResultsValid() {
		return Outcome{}, utils.NewAppError(utils.OpSource, "analysis has no valid results", ErrEnvironmentUnavailable)
	}

	graph, err := p.assembler.Assemble(ctx, analysis)
	if err != nil {
		if errors.Is(err, engine.ErrNoSessionIdentity) {
			p.logger.Info("no fiber id on first signature, nothing persisted")
			return Outcome{}, nil
		}
		return Outcome{}, utils.NewAppError(utils.OpAssemble, "assemble session", err)
	}

	if err := p.store.Commit(ctx, graph); err != nil {
		return Outcome{}, utils.NewAppError(utils.OpCommit, "commit session", err)
	}

	return Outcome{
		Persisted: true,
		FiberID:   graph.Header.FiberIDString,
		HeaderID:  graph.Header.ID,
		Results:   graph.CountByKind(),
	}, nil
}
