package recorder

import (
	"database/sql"
	"embed"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteRecorder persists rollover history to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Every connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return &SQLiteRecorder{db: db}, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

func (r *SQLiteRecorder) RecordResolution(evt *ResolutionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO resolutions
		(timestamp, controller_id, day, base_tier, active_tier, holidays, is_weekend, is_holiday, currency)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), evt.ControllerID, evt.Date.Format(time.DateOnly),
		evt.BaseTier, evt.ActiveTier, strings.Join(evt.Holidays, ","),
		evt.IsWeekend, evt.IsHoliday, evt.Currency,
	)
	return err
}

func (r *SQLiteRecorder) RecordSettlement(evt *SettlementEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO settlements
		(timestamp, run_id, member_id, points, currency, deposited, slots_used,
		 best_multiplier, seconds_in_call, new_points_record, new_call_time_record, error)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), evt.RunID, evt.MemberID, evt.Points.String(), evt.Currency,
		evt.Deposited, evt.SlotsUsed, evt.BestMultiplier.String(), evt.SecondsInCall,
		evt.NewPointsRecord, evt.NewCallTimeRecord, evt.Err,
	)
	return err
}

func (r *SQLiteRecorder) RecordRun(evt *RunEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO rollover_runs
		(run_id, started_at, finished_at, closing_tier, opening_tier,
		 members, settled, failed, total_points, currency)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		evt.RunID, evt.StartedAt.Unix(), evt.FinishedAt.Unix(),
		evt.ClosingTier, evt.OpeningTier,
		evt.Members, evt.Settled, evt.Failed, evt.TotalPoints.String(), evt.CurrencyName,
	)
	return err
}

// RecentRuns returns up to limit rollover runs, newest first.
func (r *SQLiteRecorder) RecentRuns(limit int) ([]RunEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT run_id, started_at, finished_at, closing_tier, opening_tier,
		members, settled, failed, total_points, currency
		FROM rollover_runs ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunEvent
	for rows.Next() {
		var (
			evt             RunEvent
			started, ended  int64
			total           string
			closing, opened sql.NullString
			currency        sql.NullString
		)
		if err := rows.Scan(&evt.RunID, &started, &ended, &closing, &opened,
			&evt.Members, &evt.Settled, &evt.Failed, &total, &currency); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		evt.StartedAt = time.Unix(started, 0)
		evt.FinishedAt = time.Unix(ended, 0)
		evt.ClosingTier = closing.String
		evt.OpeningTier = opened.String
		evt.CurrencyName = currency.String
		if evt.TotalPoints, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("parse total %q: %w", total, err)
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

// MemberSettlements returns up to limit settlements of one member, newest first.
func (r *SQLiteRecorder) MemberSettlements(memberID string, limit int) ([]SettlementEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT run_id, points, currency, deposited, slots_used,
		best_multiplier, seconds_in_call, new_points_record, new_call_time_record, error
		FROM settlements WHERE member_id = ? ORDER BY id DESC LIMIT ?`, memberID, limit)
	if err != nil {
		return nil, fmt.Errorf("query settlements: %w", err)
	}
	defer rows.Close()

	var out []SettlementEvent
	for rows.Next() {
		var (
			evt          SettlementEvent
			points, best string
			errText      sql.NullString
		)
		if err := rows.Scan(&evt.RunID, &points, &evt.Currency, &evt.Deposited, &evt.SlotsUsed,
			&best, &evt.SecondsInCall, &evt.NewPointsRecord, &evt.NewCallTimeRecord, &errText); err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		evt.MemberID = memberID
		evt.Err = errText.String
		if evt.Points, err = decimal.NewFromString(points); err != nil {
			return nil, fmt.Errorf("parse points %q: %w", points, err)
		}
		if evt.BestMultiplier, err = decimal.NewFromString(best); err != nil {
			return nil, fmt.Errorf("parse multiplier %q: %w", best, err)
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}
