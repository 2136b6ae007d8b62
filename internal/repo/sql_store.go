package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/fiberlab/otdr-persist/internal/models"
)

// Dialect selects the SQL flavour and migration set.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DefaultSQLiteDSN is used when the sqlite driver is configured without a DSN.
const DefaultSQLiteDSN = "file:otdr-results.sqlite?_pragma=foreign_keys(1)&_time_format=sqlite"

// SQLStore persists result graphs to SQLite or PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

// OpenSQLStore opens and pings the database for dialect.
func OpenSQLStore(ctx context.Context, dialect Dialect, dsn string, logger *slog.Logger) (*SQLStore, error) {
	var driverName string
	switch dialect {
	case DialectSQLite:
		driverName = "sqlite"
		if strings.TrimSpace(dsn) == "" {
			dsn = DefaultSQLiteDSN
		}
	case DialectPostgres:
		driverName = "pgx"
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", dialect)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewSQLStore(db, dialect, logger), nil
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB, dialect Dialect, logger *slog.Logger) *SQLStore {
	if logger == nil {
		logger = slog.Default()
	}
	if dialect == DialectSQLite {
		// A single connection keeps in-memory databases and write locks coherent.
		db.SetMaxOpenConns(1)
	}
	return &SQLStore{db: db, dialect: dialect, logger: logger}
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// FindInstrument returns the stored instrument, or nil when none matches.
func (s *SQLStore) FindInstrument(ctx context.Context, serialNumber string) (*models.Instrument, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT serial_number, model_number
		FROM instrument
		WHERE serial_number = ?
	`), serialNumber)

	var inst models.Instrument
	if err := row.Scan(&inst.SerialNumber, &inst.ModelNumber); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan instrument: %w", err)
	}
	return &inst, nil
}

// Commit writes the whole graph in one transaction. On success the header and
// every result carry their assigned IDs; on failure nothing is written.
func (s *SQLStore) Commit(ctx context.Context, graph *models.Graph) (err error) {
	if graph == nil || graph.Header == nil {
		return errors.New("graph has no session header")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if graph.Instrument != nil && graph.InstrumentIsNew {
		if _, err = tx.ExecContext(ctx, s.rebind(`
			INSERT INTO instrument (serial_number, model_number) VALUES (?, ?)
		`), graph.Instrument.SerialNumber, graph.Instrument.ModelNumber); err != nil {
			return fmt.Errorf("insert instrument: %w", err)
		}
	}

	headerID, err := s.insertHeader(ctx, tx, graph.Header)
	if err != nil {
		return err
	}

	results := graph.Results()
	ids := make([]int64, len(results))
	for i, r := range results {
		if ids[i], err = s.insertResult(ctx, tx, headerID, r); err != nil {
			return fmt.Errorf("insert %s result %d: %w", r.Kind(), i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	graph.Header.ID = headerID
	for i, r := range results {
		r.Base().ID = ids[i]
	}
	return nil
}

func (s *SQLStore) insertHeader(ctx context.Context, tx *sql.Tx, h *models.SessionHeader) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, s.rebind(`
		INSERT INTO result_set_header (fiber_id_string, fiber_id_tag, date_created, entered_length, operator_id)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`), h.FiberIDString, h.FiberIDTag, h.DateCreated.UTC(), nullFloat(h.EnteredLength), nullString(h.OperatorID)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert header: %w", err)
	}

	for i, label := range h.Labels {
		if _, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO result_set_label (set_header_id, position, tag, value) VALUES (?, ?, ?, ?)
		`), id, i, label.Tag, label.Value); err != nil {
			return 0, fmt.Errorf("insert label %q: %w", label.Tag, err)
		}
	}
	return id, nil
}

func (s *SQLStore) insertResult(ctx context.Context, tx *sql.Tx, headerID int64, r models.Result) (int64, error) {
	base := r.Base()
	var spoolEnd any
	if base.SpoolEnd != nil {
		spoolEnd = string(*base.SpoolEnd)
	}
	var instrument any
	if base.Instrument != nil {
		instrument = base.Instrument.SerialNumber
	}

	var id int64
	if err := tx.QueryRowContext(ctx, s.rebind(`
		INSERT INTO result (kind, date_measured, file_path, spool_end, set_header_id, instrument_sn)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`), string(r.Kind()), base.DateMeasured.UTC(), nullString(base.FilePath), spoolEnd, headerID, instrument).Scan(&id); err != nil {
		return 0, err
	}

	var err error
	switch v := r.(type) {
	case *models.SignatureResult:
		err = s.insertSignature(ctx, tx, id, v)
	case *models.AttenuationResult:
		err = s.insertAttenuation(ctx, tx, id, v)
	case *models.ModeFieldResult:
		err = s.insertModeField(ctx, tx, id, v)
	case *models.LengthResult:
		_, err = tx.ExecContext(ctx, s.rebind(`
			INSERT INTO length_result (result_id, length_measured, group_index, method, wavelength_used)
			VALUES (?, ?, ?, ?, ?)
		`), id, v.LengthMeasured, v.GroupIndex, string(v.Method), nullFloat(v.WavelengthUsed))
	default:
		err = fmt.Errorf("unknown result type %T", r)
	}
	return id, err
}

func (s *SQLStore) insertSignature(ctx context.Context, tx *sql.Tx, id int64, sig *models.SignatureResult) error {
	args := []any{
		id, sig.Wavelength, sig.GroupIndex, sig.PulseWidthM, sig.PointSpacingM, sig.RangeKM,
		sig.Direction.String(), string(sig.AverageType),
		nullFloat(sig.AverageCount), nullFloat(sig.AverageTime), nullFloat(sig.AverageLocation), nullFloat(sig.AverageTarget),
		nullFloat(sig.Length), nullFloat(sig.Attenuation),
	}
	for _, ev := range []models.SignatureEvent{sig.InsertionEvent, sig.EndEvent, sig.MaxLossEvent, sig.MinLossEvent, sig.MaxReflectanceEvent} {
		args = append(args, nullFloat(ev.Location), nullFloat(ev.Loss), nullFloat(ev.Reflectance))
	}
	args = append(args,
		nullFloat(sig.MaxLsaDeviation.Location), nullFloat(sig.MaxLsaDeviation.Deviation),
		nullFloat(sig.MaxWindowAtten.Location), nullFloat(sig.MaxWindowAtten.Attenuation),
		nullFloat(sig.MinWindowAtten.Location), nullFloat(sig.MinWindowAtten.Attenuation),
		nullFloat(sig.MaxWindowUnif.Location), nullFloat(sig.MaxWindowUnif.Uniformity),
		nullFloat(sig.MinWindowUnif.Location), nullFloat(sig.MinWindowUnif.Uniformity),
	)

	_, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO signature_result (
			result_id, wavelength, group_index, pulse_width_m, point_spacing_m, range_km,
			direction, average_type,
			average_count, average_time, average_location, average_target,
			length_km, attenuation,
			insertion_location, insertion_loss, insertion_reflectance,
			end_location, end_loss, end_reflectance,
			max_loss_location, max_loss_loss, max_loss_reflectance,
			min_loss_location, min_loss_loss, min_loss_reflectance,
			max_reflectance_location, max_reflectance_loss, max_reflectance_reflectance,
			max_lsa_location, max_lsa_deviation,
			max_window_atten_location, max_window_atten,
			min_window_atten_location, min_window_atten,
			max_window_unif_location, max_window_unif,
			min_window_unif_location, min_window_unif
		) VALUES (`+placeholders(len(args))+`)
	`), args...)
	return err
}

func (s *SQLStore) insertAttenuation(ctx context.Context, tx *sql.Tx, id int64, a *models.AttenuationResult) error {
	if _, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO attenuation_result (result_id, length_used, method) VALUES (?, ?, ?)
	`), id, nullFloat(a.LengthUsed), string(a.Method)); err != nil {
		return err
	}
	for i, w := range a.Waves {
		if _, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO attenuation_wave_result (attenuation_result_id, position, wavelength, attenuation_coefficient)
			VALUES (?, ?, ?, ?)
		`), id, i, w.Wavelength, nullFloat(w.AttenuationCoefficient)); err != nil {
			return fmt.Errorf("wave %v: %w", w.Wavelength, err)
		}
	}
	return nil
}

func (s *SQLStore) insertModeField(ctx context.Context, tx *sql.Tx, id int64, m *models.ModeFieldResult) error {
	if _, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO mode_field_result (result_id, method) VALUES (?, ?)
	`), id, string(m.Method)); err != nil {
		return err
	}
	for i, w := range m.Waves {
		if _, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO mode_field_wave_result (mode_field_result_id, position, wavelength, mfd_standard)
			VALUES (?, ?, ?, ?)
		`), id, i, w.Wavelength, w.MfdStandard); err != nil {
			return fmt.Errorf("wave %v: %w", w.Wavelength, err)
		}
	}
	return nil
}

// ListSessions returns stored sessions newest first. An empty fiberID lists
// every fiber.
func (s *SQLStore) ListSessions(ctx context.Context, fiberID string, limit int) ([]models.SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT h.id, h.fiber_id_string, h.date_created,
			(SELECT r.instrument_sn FROM result r
				WHERE r.set_header_id = h.id AND r.instrument_sn IS NOT NULL
				ORDER BY r.id LIMIT 1),
			(SELECT l.length_measured FROM length_result l
				JOIN result r ON r.id = l.result_id
				WHERE r.set_header_id = h.id
				ORDER BY r.id LIMIT 1)
		FROM result_set_header h`
	args := []any{}
	if fiberID != "" {
		query += ` WHERE h.fiber_id_string = ?`
		args = append(args, fiberID)
	}
	query += ` ORDER BY h.date_created DESC, h.id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}

	var sessions []models.SessionSummary
	for rows.Next() {
		var (
			summary    models.SessionSummary
			created    dbTime
			instrument sql.NullString
			length     sql.NullFloat64
		)
		if err := rows.Scan(&summary.HeaderID, &summary.FiberIDString, &created, &instrument, &length); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan session: %w", err)
		}
		summary.DateCreated = created.Time
		summary.Instrument = instrument.String
		if length.Valid {
			summary.ReportedLength = models.Float(length.Float64)
		}
		sessions = append(sessions, summary)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range sessions {
		counts, err := s.resultCounts(ctx, sessions[i].HeaderID)
		if err != nil {
			return nil, err
		}
		sessions[i].ResultCounts = counts
	}
	return sessions, nil
}

func (s *SQLStore) resultCounts(ctx context.Context, headerID int64) (map[models.ResultKind]int, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT kind, COUNT(*) FROM result WHERE set_header_id = ? GROUP BY kind
	`), headerID)
	if err != nil {
		return nil, fmt.Errorf("query result counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.ResultKind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan result count: %w", err)
		}
		counts[models.ResultKind(kind)] = n
	}
	return counts, rows.Err()
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// dbTime scans timestamps stored natively (PostgreSQL) or as text (SQLite).
type dbTime struct {
	Time time.Time
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case nil:
		t.Time = time.Time{}
		return nil
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (t *dbTime) parse(v string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, v); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", v)
}
