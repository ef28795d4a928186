package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/prospect-cli/internal/apperr"
	"github.com/sells-group/prospect-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// The pool is pinned to one connection so pragmas apply to every statement
// and concurrent stages queue instead of failing with SQLITE_BUSY.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	name              TEXT,
	business_name     TEXT,
	email             TEXT,
	phone             TEXT,
	address           TEXT,
	niche             TEXT NOT NULL,
	business_type     TEXT NOT NULL DEFAULT '',
	location          TEXT NOT NULL,
	website           TEXT,
	source            TEXT NOT NULL DEFAULT '',
	source_id         TEXT,
	dedup_key         TEXT NOT NULL UNIQUE,
	email_sent        INTEGER NOT NULL DEFAULT 0,
	email_sent_at     DATETIME,
	reply_count       INTEGER NOT NULL DEFAULT 0,
	last_contacted    DATETIME,
	prototype_url     TEXT,
	prototype_created INTEGER NOT NULL DEFAULT 0,
	enrich_attempted_at DATETIME,
	status            TEXT NOT NULL DEFAULT 'new',
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS lead_keys (
	key     TEXT PRIMARY KEY,
	lead_id INTEGER NOT NULL REFERENCES leads(id)
);

INSERT OR IGNORE INTO lead_keys (key, lead_id) SELECT dedup_key, id FROM leads;

CREATE TABLE IF NOT EXISTS conversation_turns (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	lead_id    INTEGER NOT NULL REFERENCES leads(id),
	seq        INTEGER NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (lead_id, seq)
);

CREATE TABLE IF NOT EXISTS email_campaigns (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	lead_id    INTEGER NOT NULL,
	subject    TEXT NOT NULL,
	body       TEXT NOT NULL,
	status     TEXT NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS website_prototypes (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	lead_id    INTEGER NOT NULL,
	url        TEXT NOT NULL,
	content    TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS processed_messages (
	message_id   TEXT PRIMARY KEY,
	lead_id      INTEGER NOT NULL,
	processed_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_email ON leads(lower(email));
CREATE INDEX IF NOT EXISTS idx_leads_niche_location ON leads(niche, location);
CREATE INDEX IF NOT EXISTS idx_lead_keys_lead_id ON lead_keys(lead_id);
CREATE INDEX IF NOT EXISTS idx_email_campaigns_lead_id ON email_campaigns(lead_id);
CREATE INDEX IF NOT EXISTS idx_website_prototypes_lead_id ON website_prototypes(lead_id);
`

// sqliteAddedColumns are lead columns added after the first release. SQLite
// has no ADD COLUMN IF NOT EXISTS, so Migrate checks table_info first.
var sqliteAddedColumns = map[string]string{
	"enrich_attempted_at": "DATETIME",
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info('leads')`)
	if err != nil {
		return eris.Wrap(err, "sqlite: table info")
	}
	have := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close() //nolint:errcheck
			return eris.Wrap(err, "sqlite: scan table info")
		}
		have[name] = true
	}
	rows.Close() //nolint:errcheck
	if err := rows.Err(); err != nil {
		return eris.Wrap(err, "sqlite: table info iterate")
	}

	for col, typ := range sqliteAddedColumns {
		if have[col] {
			continue
		}
		if _, err := s.db.ExecContext(ctx, `ALTER TABLE leads ADD COLUMN `+col+` `+typ); err != nil {
			return eris.Wrapf(err, "sqlite: add column %s", col)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateLead(ctx context.Context, lead *model.Lead) (*model.Lead, error) {
	now := time.Now().UTC()
	status := lead.Status
	if status == "" {
		status = model.StatusNew
	}
	keys := identityKeys(lead)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin insert lead")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`INSERT INTO leads (name, business_name, email, phone, address, niche, business_type, location,
			website, source, source_id, dedup_key, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lead.Name, lead.BusinessName, lead.Email, lead.Phone, lead.Address,
		lead.Niche, lead.BusinessType, lead.Location,
		lead.Website, lead.Source, lead.SourceID, lead.DedupKey, string(status), now, now,
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return nil, apperr.Newf(apperr.KindConflict, "sqlite: insert lead", "dedup key exists: %s", lead.DedupKey)
		}
		return nil, eris.Wrap(err, "sqlite: insert lead")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: last insert id")
	}

	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, `INSERT INTO lead_keys (key, lead_id) VALUES (?, ?)`, key, id); err != nil {
			if isSQLiteUnique(err) {
				return nil, apperr.Newf(apperr.KindConflict, "sqlite: insert lead key", "identity key exists: %s", key)
			}
			return nil, eris.Wrap(err, "sqlite: insert lead key")
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit lead")
	}

	out := *lead
	out.ID = id
	out.IdentityKeys = keys
	out.Status = status
	out.CreatedAt = now
	out.UpdatedAt = now
	return &out, nil
}

func (s *SQLiteStore) GetLead(ctx context.Context, id int64) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id)
	l, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("sqlite: get lead", "lead", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lead %d", id)
	}
	if l.Turns, err = s.ListTurns(ctx, id); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *SQLiteStore) GetLeadByEmail(ctx context.Context, email string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE lower(email) = lower(?) ORDER BY id LIMIT 1`,
		strings.TrimSpace(email),
	)
	l, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("sqlite: get lead by email", "lead", email)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get lead by email")
	}
	return l, nil
}

func (s *SQLiteStore) DedupKeysExist(ctx context.Context, keys []string) (bool, error) {
	if len(keys) == 0 {
		return false, nil
	}
	query, args := buildKeysExist(sqlitePH, keys)
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, eris.Wrap(err, "sqlite: dedup keys exist")
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query, args := buildListLeads(sqlitePH, filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close() //nolint:errcheck

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func (s *SQLiteStore) UpdateLead(ctx context.Context, id int64, patch LeadPatch) (*model.Lead, error) {
	query, args, ok := buildLeadUpdate(sqlitePH, id, patch, time.Now().UTC())
	if !ok {
		return s.GetLead(ctx, id)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update lead %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return nil, s.explainMiss(ctx, id, patch)
	}
	return s.GetLead(ctx, id)
}

// explainMiss distinguishes a missing lead from a lost compare-and-set.
func (s *SQLiteStore) explainMiss(ctx context.Context, id int64, patch LeadPatch) error {
	var status string
	var protoURL sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT status, prototype_url FROM leads WHERE id = ?`, id).Scan(&status, &protoURL)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("sqlite: update lead", "lead", id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: recheck lead %d", id)
	}
	return staleError(id, model.Status(status), protoURL.Valid, patch)
}

func (s *SQLiteStore) FillContact(ctx context.Context, id int64, found model.EnrichmentResult) (*model.Lead, error) {
	query, args, ok := buildFillContact(sqlitePH, id, found, time.Now().UTC())
	if !ok {
		return s.GetLead(ctx, id)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: fill contact %d", id)
	}
	if err := checkRowsAffected(res, "lead", id); err != nil {
		return nil, err
	}
	return s.GetLead(ctx, id)
}

func (s *SQLiteStore) DeleteLead(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin delete")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, q := range []string{
		`DELETE FROM conversation_turns WHERE lead_id = ?`,
		`DELETE FROM email_campaigns WHERE lead_id = ?`,
		`DELETE FROM website_prototypes WHERE lead_id = ?`,
		`DELETE FROM processed_messages WHERE lead_id = ?`,
		`DELETE FROM lead_keys WHERE lead_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return eris.Wrapf(err, "sqlite: delete lead %d children", id)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM leads WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete lead %d", id)
	}
	if err := checkRowsAffected(res, "lead", id); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit delete")
}

func (s *SQLiteStore) AppendTurn(ctx context.Context, leadID int64, role model.Role, content string) (*model.Turn, error) {
	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin append turn")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `UPDATE leads SET updated_at = ? WHERE id = ?`, now, leadID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: touch lead %d", leadID)
	}
	if err := checkRowsAffected(res, "lead", leadID); err != nil {
		return nil, err
	}

	var seq int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM conversation_turns WHERE lead_id = ?`, leadID,
	).Scan(&seq); err != nil {
		return nil, eris.Wrap(err, "sqlite: next turn seq")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversation_turns (lead_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		leadID, seq, string(role), content, now,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: insert turn")
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit turn")
	}
	return &model.Turn{Seq: seq, Role: role, Content: content, CreatedAt: now}, nil
}

func (s *SQLiteStore) ListTurns(ctx context.Context, leadID int64) ([]model.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, role, content, created_at FROM conversation_turns WHERE lead_id = ? ORDER BY seq`, leadID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list turns")
	}
	defer rows.Close() //nolint:errcheck

	var turns []model.Turn
	for rows.Next() {
		var t model.Turn
		var role string
		if err := rows.Scan(&t.Seq, &role, &t.Content, &t.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan turn")
		}
		t.Role = model.Role(role)
		turns = append(turns, t)
	}
	return turns, eris.Wrap(rows.Err(), "sqlite: list turns iterate")
}

func (s *SQLiteStore) RecordCampaign(ctx context.Context, c *model.EmailCampaign) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO email_campaigns (lead_id, subject, body, status, error, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.LeadID, c.Subject, c.Body, string(c.Status), c.Error, c.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert campaign")
	}
	c.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: campaign id")
}

func (s *SQLiteStore) ListCampaigns(ctx context.Context, leadID int64) ([]model.EmailCampaign, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lead_id, subject, body, status, error, created_at FROM email_campaigns
		 WHERE lead_id = ? ORDER BY id`, leadID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list campaigns")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.EmailCampaign
	for rows.Next() {
		var c model.EmailCampaign
		var status string
		if err := rows.Scan(&c.ID, &c.LeadID, &c.Subject, &c.Body, &status, &c.Error, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan campaign")
		}
		c.Status = model.CampaignStatus(status)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list campaigns iterate")
}

func (s *SQLiteStore) RecordPrototype(ctx context.Context, leadID int64, url string, content json.RawMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO website_prototypes (lead_id, url, content, created_at) VALUES (?, ?, ?, ?)`,
		leadID, url, string(content), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: insert prototype")
}

func (s *SQLiteStore) ListPrototypes(ctx context.Context, leadID int64) ([]model.WebsitePrototype, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lead_id, url, content, created_at FROM website_prototypes WHERE lead_id = ? ORDER BY id`, leadID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list prototypes")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.WebsitePrototype
	for rows.Next() {
		var p model.WebsitePrototype
		var content sql.NullString
		if err := rows.Scan(&p.ID, &p.LeadID, &p.URL, &content, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan prototype")
		}
		if content.Valid && content.String != "" {
			p.Content = json.RawMessage(content.String)
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list prototypes iterate")
}

func (s *SQLiteStore) MarkMessageProcessed(ctx context.Context, messageID string, leadID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO processed_messages (message_id, lead_id, processed_at) VALUES (?, ?, ?)
		 ON CONFLICT (message_id) DO NOTHING`,
		messageID, leadID, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: mark message processed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (*model.Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM leads GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats breakdown")
	}
	breakdown := make(map[model.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "sqlite: scan stats")
		}
		breakdown[model.Status(status)] = n
	}
	rows.Close() //nolint:errcheck
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: stats iterate")
	}

	var sent, sites int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(email_sent), 0), COALESCE(SUM(prototype_created), 0) FROM leads`,
	).Scan(&sent, &sites); err != nil {
		return nil, eris.Wrap(err, "sqlite: stats totals")
	}
	return buildStats(breakdown, sent, sites), nil
}

// helpers

func checkRowsAffected(res sql.Result, entity string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return apperr.NotFound("store", entity, id)
	}
	return nil
}

func isSQLiteUnique(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// staleError builds the error returned when a guarded update matched no row
// even though the lead exists.
func staleError(id int64, current model.Status, hasPrototype bool, patch LeadPatch) error {
	if patch.RequireNoPrototype && hasPrototype {
		return apperr.Newf(apperr.KindStale, "store: update lead", "lead %d already has a prototype", id)
	}
	if patch.ExpectStatus != nil {
		return apperr.Newf(apperr.KindStale, "store: update lead",
			"lead %d status is %s, expected %s", id, current, *patch.ExpectStatus)
	}
	return apperr.Newf(apperr.KindStale, "store: update lead", "lead %d not updated", id)
}
