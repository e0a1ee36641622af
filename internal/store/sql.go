package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"freightpool/internal/model"
)

// SQL is a database/sql store for Postgres (driver "pgx") or SQLite
// (driver "sqlite"). Times are stored as unix nanoseconds and documents as
// JSON text so one schema serves both engines.
type SQL struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

var placeholder = regexp.MustCompile(`\$\d+`)

func Open(driver, dsn string) (*SQL, error) {
	switch driver {
	case "pgx", "sqlite":
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// one connection keeps :memory: databases shared and serializes writers
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQL{db: db, driver: driver, now: time.Now}, nil
}

func (s *SQL) Close() error { return s.db.Close() }

// q rewrites $n placeholders for SQLite. Queries must use each $n once, in
// ascending order.
func (s *SQL) q(query string) string {
	if s.driver != "sqlite" {
		return query
	}
	return placeholder.ReplaceAllString(query, "?")
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS shipments (
		id TEXT PRIMARY KEY,
		doc TEXT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS carriers (
		id TEXT PRIMARY KEY,
		doc TEXT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		operation TEXT NOT NULL,
		status TEXT NOT NULL,
		shipments INTEGER NOT NULL,
		routes INTEGER NOT NULL,
		total_cost DOUBLE PRECISION NOT NULL,
		savings DOUBLE PRECISION NOT NULL,
		seed BIGINT NOT NULL,
		elapsed_ms BIGINT NOT NULL,
		created_at BIGINT NOT NULL,
		result TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS runs_created_at ON runs (created_at)`,
	`CREATE TABLE IF NOT EXISTS webhook_deliveries (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		url TEXT NOT NULL,
		secret TEXT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL,
		next_attempt_at BIGINT NOT NULL,
		last_error TEXT NOT NULL,
		response_code INTEGER NOT NULL,
		latency_ms INTEGER NOT NULL,
		dedup_key TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		UNIQUE (event_type, url, dedup_key)
	)`,
	`CREATE INDEX IF NOT EXISTS webhook_deliveries_due ON webhook_deliveries (status, next_attempt_at)`,
}

// Migrate creates the schema. It is idempotent.
func (s *SQL) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQL) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQL) PutShipments(ctx context.Context, shipments []model.Shipment) (int, error) {
	docs := make(map[string]any, len(shipments))
	ids := make([]string, 0, len(shipments))
	for _, sh := range shipments {
		if _, ok := docs[sh.ID]; !ok {
			ids = append(ids, sh.ID)
		}
		docs[sh.ID] = sh
	}
	return s.putDocs(ctx, "shipments", ids, docs)
}

func (s *SQL) PutCarriers(ctx context.Context, carriers []model.Carrier) (int, error) {
	docs := make(map[string]any, len(carriers))
	ids := make([]string, 0, len(carriers))
	for _, c := range carriers {
		if _, ok := docs[c.ID]; !ok {
			ids = append(ids, c.ID)
		}
		docs[c.ID] = c
	}
	return s.putDocs(ctx, "carriers", ids, docs)
}

func (s *SQL) putDocs(ctx context.Context, table string, ids []string, docs map[string]any) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	stmt := s.q(`INSERT INTO ` + table + ` (id, doc, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`)
	now := s.now().UnixNano()
	for _, id := range ids {
		b, err := json.Marshal(docs[id])
		if err != nil {
			return 0, fmt.Errorf("%s %s: %w", table, id, err)
		}
		if _, err := tx.ExecContext(ctx, stmt, id, string(b), now); err != nil {
			return 0, fmt.Errorf("%s %s: %w", table, id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (s *SQL) ListShipments(ctx context.Context, ids []string) ([]model.Shipment, error) {
	var out []model.Shipment
	err := s.listDocs(ctx, "shipments", ids, func(doc []byte) error {
		var sh model.Shipment
		if err := json.Unmarshal(doc, &sh); err != nil {
			return err
		}
		out = append(out, sh)
		return nil
	})
	if out == nil && err == nil {
		out = []model.Shipment{}
	}
	return out, err
}

func (s *SQL) ListCarriers(ctx context.Context, ids []string) ([]model.Carrier, error) {
	var out []model.Carrier
	err := s.listDocs(ctx, "carriers", ids, func(doc []byte) error {
		var c model.Carrier
		if err := json.Unmarshal(doc, &c); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	if out == nil && err == nil {
		out = []model.Carrier{}
	}
	return out, err
}

// listDocs feeds each document to add, ordered by id for a nil ids and in
// the order of ids otherwise.
func (s *SQL) listDocs(ctx context.Context, table string, ids []string, add func([]byte) error) error {
	var (
		rows *sql.Rows
		err  error
	)
	if ids == nil {
		rows, err = s.db.QueryContext(ctx, `SELECT id, doc FROM `+table+` ORDER BY id`)
	} else {
		if len(ids) == 0 {
			return nil
		}
		marks := make([]string, len(ids))
		args := make([]any, len(ids))
		for i, id := range ids {
			marks[i] = fmt.Sprintf("$%d", i+1)
			args[i] = id
		}
		rows, err = s.db.QueryContext(ctx, s.q(`SELECT id, doc FROM `+table+` WHERE id IN (`+strings.Join(marks, ", ")+`)`), args...)
	}
	if err != nil {
		return err
	}
	defer rows.Close()
	byID := map[string][]byte{}
	var order []string
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return err
		}
		byID[id] = []byte(doc)
		order = append(order, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if ids == nil {
		ids = order
	}
	kind := strings.TrimSuffix(table, "s")
	for _, id := range ids {
		doc, ok := byID[id]
		if !ok {
			return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
		}
		if err := add(doc); err != nil {
			return fmt.Errorf("%s %s: %w", kind, id, err)
		}
	}
	return nil
}

func (s *SQL) SaveRun(ctx context.Context, r Run) error {
	var result any
	if len(r.Result) > 0 {
		result = string(r.Result)
	}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO runs (id, operation, status, shipments, routes, total_cost, savings, seed, elapsed_ms, created_at, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET status = excluded.status, routes = excluded.routes, total_cost = excluded.total_cost,
			savings = excluded.savings, elapsed_ms = excluded.elapsed_ms, result = excluded.result`),
		r.ID, r.Operation, r.Status, r.Shipments, r.Routes, r.TotalCost, r.Savings, r.Seed, r.ElapsedMs, r.CreatedAt.UnixNano(), result)
	return err
}

const runColumns = `id, operation, status, shipments, routes, total_cost, savings, seed, elapsed_ms, created_at`

type scanner interface{ Scan(dest ...any) error }

func scanRun(row scanner, extra ...any) (Run, error) {
	var r Run
	var created int64
	dest := append([]any{&r.ID, &r.Operation, &r.Status, &r.Shipments, &r.Routes, &r.TotalCost, &r.Savings, &r.Seed, &r.ElapsedMs, &created}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Run{}, err
	}
	r.CreatedAt = time.Unix(0, created).UTC()
	return r, nil
}

func (s *SQL) GetRun(ctx context.Context, id string) (Run, error) {
	var result sql.NullString
	r, err := scanRun(s.db.QueryRowContext(ctx, s.q(`SELECT `+runColumns+`, result FROM runs WHERE id = $1`), id), &result)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, err
	}
	if result.Valid {
		r.Result = json.RawMessage(result.String)
	}
	return r, nil
}

// ListRuns returns the newest runs first, without their result documents.
func (s *SQL) ListRuns(ctx context.Context, operation string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	var (
		rows *sql.Rows
		err  error
	)
	if operation == "" {
		rows, err = s.db.QueryContext(ctx, s.q(`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id DESC LIMIT $1`), limit)
	} else {
		rows, err = s.db.QueryContext(ctx, s.q(`SELECT `+runColumns+` FROM runs WHERE operation = $1 ORDER BY created_at DESC, id DESC LIMIT $2`), operation, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// EnqueueWebhook returns an empty id when an identical event was already
// queued for the same URL.
func (s *SQL) EnqueueWebhook(ctx context.Context, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	now := s.now().UnixNano()
	res, err := s.db.ExecContext(ctx, s.q(`INSERT INTO webhook_deliveries
		(id, event_type, url, secret, payload, status, attempts, next_attempt_at, last_error, response_code, latency_ms, dedup_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, '', 0, 0, $8, $9)
		ON CONFLICT (event_type, url, dedup_key) DO NOTHING`),
		id, eventType, url, secret, string(payload), DeliveryPending, now, computeDedupKey(payload), now)
	if err != nil {
		return "", err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return "", nil
	}
	return id, nil
}

const deliveryColumns = `id, event_type, url, secret, payload, status, attempts, next_attempt_at, last_error, response_code, latency_ms, created_at`

func scanDelivery(row scanner) (WebhookDelivery, error) {
	var d WebhookDelivery
	var payload string
	var next, created int64
	if err := row.Scan(&d.ID, &d.EventType, &d.URL, &d.Secret, &payload, &d.Status, &d.Attempts, &next, &d.LastError, &d.ResponseCode, &d.LatencyMs, &created); err != nil {
		return WebhookDelivery{}, err
	}
	d.Payload = []byte(payload)
	d.NextAttemptAt = time.Unix(0, next).UTC()
	d.CreatedAt = time.Unix(0, created).UTC()
	return d, nil
}

func (s *SQL) queryDeliveries(ctx context.Context, query string, args ...any) ([]WebhookDelivery, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQL) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryDeliveries(ctx, `SELECT `+deliveryColumns+` FROM webhook_deliveries
		WHERE status IN ('pending', 'retry') AND next_attempt_at <= $1 ORDER BY next_attempt_at ASC LIMIT $2`,
		s.now().UnixNano(), limit)
}

func (s *SQL) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	var res sql.Result
	var err error
	if success {
		res, err = s.db.ExecContext(ctx, s.q(`UPDATE webhook_deliveries SET attempts = attempts + 1, status = $1, last_error = '', response_code = $2, latency_ms = $3 WHERE id = $4`),
			DeliveryDelivered, responseCode, latencyMs, id)
	} else {
		next := s.now().Add(time.Minute)
		if nextAttemptAt != nil {
			next = *nextAttemptAt
		}
		res, err = s.db.ExecContext(ctx, s.q(`UPDATE webhook_deliveries SET attempts = attempts + 1, status = $1, last_error = $2, next_attempt_at = $3, response_code = $4, latency_ms = $5 WHERE id = $6`),
			DeliveryRetry, lastError, next.UnixNano(), responseCode, latencyMs, id)
	}
	return affected(res, err)
}

func (s *SQL) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE webhook_deliveries SET attempts = attempts + 1, status = $1, last_error = $2, response_code = $3, latency_ms = $4 WHERE id = $5`),
		DeliveryFailed, lastError, responseCode, latencyMs, id)
	return affected(res, err)
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQL) ListWebhookDeliveries(ctx context.Context, status string, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 100
	}
	if status == "" {
		return s.queryDeliveries(ctx, `SELECT `+deliveryColumns+` FROM webhook_deliveries ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	}
	return s.queryDeliveries(ctx, `SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE status = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, status, limit)
}
