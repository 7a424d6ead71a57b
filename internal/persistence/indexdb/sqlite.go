package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bdew/MCMultiPart/internal/protocol/change"
	"github.com/bdew/MCMultiPart/internal/sim/world"
)

// SQLiteIndex is a queryable read model of the change journal. Writes are
// queued and applied on a background goroutine; the journal stays the
// source of truth, so a full queue drops rows instead of stalling the world.
type SQLiteIndex struct {
	db      *sql.DB
	worldID string

	ch   chan world.ChangeLogEntry
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	pending   atomic.Int64
	dropped   atomic.Uint64
	written   atomic.Uint64
	writeFail atomic.Uint64
}

type Stats struct {
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	DroppedTotal  uint64 `json:"dropped_total"`
	WrittenTotal  uint64 `json:"written_total"`
	WriteFailures uint64 `json:"write_failures"`
}

// ChangeRow is one indexed change.
type ChangeRow struct {
	Session    string
	Seq        uint64
	Tick       uint64
	Kind       string
	PartID     string
	Type       string
	Pos        [3]int32
	PayloadLen int
	Record     []byte
}

// OpenSQLite opens (or creates) the index at path. Rows are tagged with
// worldID so one file can hold several worlds.
func OpenSQLite(path, worldID string) (*SQLiteIndex, error) {
	return openSQLite(path, worldID, 65536)
}

func openSQLite(path, worldID string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:      db,
		worldID: worldID,
		ch:      make(chan world.ChangeLogEntry, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS part_types (
			name TEXT PRIMARY KEY,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS changes (
			world_id TEXT NOT NULL,
			session TEXT NOT NULL,
			seq INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			kind TEXT NOT NULL,
			part_id TEXT NOT NULL,
			type TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			payload_len INTEGER NOT NULL,
			record BLOB NOT NULL,
			PRIMARY KEY (world_id, session, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_changes_part ON changes(part_id);`,
		`CREATE INDEX IF NOT EXISTS idx_changes_pos ON changes(x, z, y);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	_, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`)
	return err
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// WriteChange implements world.ChangeLogger.
func (s *SQLiteIndex) WriteChange(entry world.ChangeLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	s.pending.Add(1)
	select {
	case s.ch <- entry:
	default:
		s.pending.Add(-1)
		s.dropped.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DroppedTotal:  s.dropped.Load(),
		WrittenTotal:  s.written.Load(),
		WriteFailures: s.writeFail.Load(),
	}
}

// UpsertPartTypes records the registered part type tags.
func (s *SQLiteIndex) UpsertPartTypes(types []string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO part_types(name,updated_at) VALUES(?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, t := range types {
		if t == "" {
			continue
		}
		if _, err := stmt.Exec(t, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) PartTypes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM part_types ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Sessions lists the recorded world runs, oldest first.
func (s *SQLiteIndex) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session FROM changes WHERE world_id=? GROUP BY session ORDER BY MIN(rowid)`, s.worldID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// PartHistory returns every indexed change of one part in write order.
func (s *SQLiteIndex) PartHistory(ctx context.Context, partID string) ([]ChangeRow, error) {
	return s.query(ctx, `SELECT session,seq,tick,kind,part_id,type,x,y,z,payload_len,record FROM changes WHERE world_id=? AND part_id=? ORDER BY rowid`, s.worldID, partID)
}

// HistoryAt returns every indexed change at one position in write order.
func (s *SQLiteIndex) HistoryAt(ctx context.Context, pos [3]int32) ([]ChangeRow, error) {
	return s.query(ctx, `SELECT session,seq,tick,kind,part_id,type,x,y,z,payload_len,record FROM changes WHERE world_id=? AND x=? AND z=? AND y=? ORDER BY rowid`, s.worldID, pos[0], pos[2], pos[1])
}

func (s *SQLiteIndex) query(ctx context.Context, q string, args ...any) ([]ChangeRow, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ChangeRow
	for rows.Next() {
		var r ChangeRow
		var seq, tick int64
		if err := rows.Scan(&r.Session, &seq, &tick, &r.Kind, &r.PartID, &r.Type, &r.Pos[0], &r.Pos[1], &r.Pos[2], &r.PayloadLen, &r.Record); err != nil {
			return nil, err
		}
		r.Seq, r.Tick = uint64(seq), uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Flush blocks until every queued change has been committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	for s.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return nil
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insert, err := s.db.Prepare(`INSERT OR REPLACE INTO changes(world_id,session,seq,tick,kind,part_id,type,x,y,z,payload_len,record) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		for range s.ch {
			s.writeFail.Add(1)
			s.pending.Add(-1)
		}
		return
	}
	defer insert.Close()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 500 * time.Millisecond
	)

	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeFail.Add(uint64(opCount))
		} else {
			s.written.Add(uint64(opCount))
		}
		s.pending.Add(-int64(opCount))
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()
	for {
		select {
		case e, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			if tx == nil {
				txx, err := s.db.BeginTx(ctx, nil)
				if err != nil {
					s.writeFail.Add(1)
					s.pending.Add(-1)
					continue
				}
				tx = txx
				lastCommit = time.Now()
			}
			if _, err := tx.Stmt(insert).Exec(
				s.worldID,
				e.Session,
				int64(e.Seq),
				int64(e.Tick),
				e.Kind,
				e.PartID,
				e.Type,
				e.Pos[0], e.Pos[1], e.Pos[2],
				payloadLen(e.Record),
				e.Record,
			); err != nil {
				s.writeFail.Add(1)
				s.pending.Add(-1)
				continue
			}
			opCount++
			if opCount >= commitEvery || len(s.ch) == 0 || time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
		case <-ticker.C:
			commit()
		}
	}
}

func payloadLen(raw []byte) int {
	rec, err := change.Decode(raw)
	if err != nil {
		return 0
	}
	return len(rec.Payload)
}
