package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/apperr"
	"github.com/sells-group/prospect-cli/internal/db"
	"github.com/sells-group/prospect-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id                BIGSERIAL PRIMARY KEY,
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
	email_sent        BOOLEAN NOT NULL DEFAULT false,
	email_sent_at     TIMESTAMPTZ,
	reply_count       INTEGER NOT NULL DEFAULT 0,
	last_contacted    TIMESTAMPTZ,
	prototype_url     TEXT,
	prototype_created BOOLEAN NOT NULL DEFAULT false,
	enrich_attempted_at TIMESTAMPTZ,
	status            TEXT NOT NULL DEFAULT 'new',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

ALTER TABLE leads ADD COLUMN IF NOT EXISTS enrich_attempted_at TIMESTAMPTZ;

CREATE TABLE IF NOT EXISTS lead_keys (
	key     TEXT PRIMARY KEY,
	lead_id BIGINT NOT NULL REFERENCES leads(id) ON DELETE CASCADE
);

INSERT INTO lead_keys (key, lead_id) SELECT dedup_key, id FROM leads ON CONFLICT (key) DO NOTHING;

CREATE TABLE IF NOT EXISTS conversation_turns (
	id         BIGSERIAL PRIMARY KEY,
	lead_id    BIGINT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	seq        INTEGER NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (lead_id, seq)
);

CREATE TABLE IF NOT EXISTS email_campaigns (
	id         BIGSERIAL PRIMARY KEY,
	lead_id    BIGINT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	subject    TEXT NOT NULL,
	body       TEXT NOT NULL,
	status     TEXT NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS website_prototypes (
	id         BIGSERIAL PRIMARY KEY,
	lead_id    BIGINT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	url        TEXT NOT NULL,
	content    JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS processed_messages (
	message_id   TEXT PRIMARY KEY,
	lead_id      BIGINT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_email ON leads(lower(email));
CREATE INDEX IF NOT EXISTS idx_leads_niche_location ON leads(niche, location);
CREATE INDEX IF NOT EXISTS idx_lead_keys_lead_id ON lead_keys(lead_id);
CREATE INDEX IF NOT EXISTS idx_email_campaigns_lead_id ON email_campaigns(lead_id);
CREATE INDEX IF NOT EXISTS idx_website_prototypes_lead_id ON website_prototypes(lead_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateLead(ctx context.Context, lead *model.Lead) (*model.Lead, error) {
	now := time.Now().UTC()
	status := lead.Status
	if status == "" {
		status = model.StatusNew
	}
	keys := identityKeys(lead)

	var id int64
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO leads (name, business_name, email, phone, address, niche, business_type, location,
				website, source, source_id, dedup_key, status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			 RETURNING id`,
			lead.Name, lead.BusinessName, lead.Email, lead.Phone, lead.Address,
			lead.Niche, lead.BusinessType, lead.Location,
			lead.Website, lead.Source, lead.SourceID, lead.DedupKey, string(status), now, now,
		).Scan(&id)
		if err != nil {
			if isPgUnique(err) {
				return apperr.Newf(apperr.KindConflict, "postgres: insert lead", "dedup key exists: %s", lead.DedupKey)
			}
			return eris.Wrap(err, "postgres: insert lead")
		}
		for _, key := range keys {
			if _, err := tx.Exec(ctx, `INSERT INTO lead_keys (key, lead_id) VALUES ($1, $2)`, key, id); err != nil {
				if isPgUnique(err) {
					return apperr.Newf(apperr.KindConflict, "postgres: insert lead key", "identity key exists: %s", key)
				}
				return eris.Wrap(err, "postgres: insert lead key")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := *lead
	out.ID = id
	out.IdentityKeys = keys
	out.Status = status
	out.CreatedAt = now
	out.UpdatedAt = now
	return &out, nil
}

func (s *PostgresStore) GetLead(ctx context.Context, id int64) (*model.Lead, error) {
	l, err := scanLead(s.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("postgres: get lead", "lead", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lead %d", id)
	}
	if l.Turns, err = s.ListTurns(ctx, id); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *PostgresStore) GetLeadByEmail(ctx context.Context, email string) (*model.Lead, error) {
	l, err := scanLead(s.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE lower(email) = lower($1) ORDER BY id LIMIT 1`,
		strings.TrimSpace(email),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("postgres: get lead by email", "lead", email)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get lead by email")
	}
	return l, nil
}

func (s *PostgresStore) DedupKeysExist(ctx context.Context, keys []string) (bool, error) {
	if len(keys) == 0 {
		return false, nil
	}
	query, args := buildKeysExist(postgresPH, keys)
	var n int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return false, eris.Wrap(err, "postgres: dedup keys exist")
	}
	return n > 0, nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query, args := buildListLeads(postgresPH, filter)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func (s *PostgresStore) UpdateLead(ctx context.Context, id int64, patch LeadPatch) (*model.Lead, error) {
	query, args, ok := buildLeadUpdate(postgresPH, id, patch, time.Now().UTC())
	if !ok {
		return s.GetLead(ctx, id)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update lead %d", id)
	}
	if tag.RowsAffected() == 0 {
		return nil, s.explainMiss(ctx, id, patch)
	}
	return s.GetLead(ctx, id)
}

func (s *PostgresStore) explainMiss(ctx context.Context, id int64, patch LeadPatch) error {
	var status string
	var protoURL *string
	err := s.pool.QueryRow(ctx, `SELECT status, prototype_url FROM leads WHERE id = $1`, id).Scan(&status, &protoURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("postgres: update lead", "lead", id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: recheck lead %d", id)
	}
	return staleError(id, model.Status(status), protoURL != nil, patch)
}

func (s *PostgresStore) FillContact(ctx context.Context, id int64, found model.EnrichmentResult) (*model.Lead, error) {
	query, args, ok := buildFillContact(postgresPH, id, found, time.Now().UTC())
	if !ok {
		return s.GetLead(ctx, id)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: fill contact %d", id)
	}
	if tag.RowsAffected() == 0 {
		return nil, apperr.NotFound("postgres: fill contact", "lead", id)
	}
	return s.GetLead(ctx, id)
}

func (s *PostgresStore) DeleteLead(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM leads WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete lead %d", id)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("postgres: delete lead", "lead", id)
	}
	return nil
}

func (s *PostgresStore) AppendTurn(ctx context.Context, leadID int64, role model.Role, content string) (*model.Turn, error) {
	now := time.Now().UTC()
	turn := &model.Turn{Role: role, Content: content, CreatedAt: now}

	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		// Row lock on the lead serializes concurrent appends.
		tag, err := tx.Exec(ctx, `UPDATE leads SET updated_at = $1 WHERE id = $2`, now, leadID)
		if err != nil {
			return eris.Wrapf(err, "postgres: touch lead %d", leadID)
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("postgres: append turn", "lead", leadID)
		}
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(seq), 0) + 1 FROM conversation_turns WHERE lead_id = $1`, leadID,
		).Scan(&turn.Seq); err != nil {
			return eris.Wrap(err, "postgres: next turn seq")
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO conversation_turns (lead_id, seq, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
			leadID, turn.Seq, string(role), content, now,
		)
		return eris.Wrap(err, "postgres: insert turn")
	})
	if err != nil {
		return nil, err
	}
	return turn, nil
}

func (s *PostgresStore) ListTurns(ctx context.Context, leadID int64) ([]model.Turn, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT seq, role, content, created_at FROM conversation_turns WHERE lead_id = $1 ORDER BY seq`, leadID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list turns")
	}
	defer rows.Close()

	var turns []model.Turn
	for rows.Next() {
		var t model.Turn
		var role string
		if err := rows.Scan(&t.Seq, &role, &t.Content, &t.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan turn")
		}
		t.Role = model.Role(role)
		turns = append(turns, t)
	}
	return turns, eris.Wrap(rows.Err(), "postgres: list turns iterate")
}

func (s *PostgresStore) RecordCampaign(ctx context.Context, c *model.EmailCampaign) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO email_campaigns (lead_id, subject, body, status, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		c.LeadID, c.Subject, c.Body, string(c.Status), c.Error, c.CreatedAt,
	).Scan(&c.ID)
	return eris.Wrap(err, "postgres: insert campaign")
}

func (s *PostgresStore) ListCampaigns(ctx context.Context, leadID int64) ([]model.EmailCampaign, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, lead_id, subject, body, status, error, created_at FROM email_campaigns
		 WHERE lead_id = $1 ORDER BY id`, leadID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list campaigns")
	}
	defer rows.Close()

	var out []model.EmailCampaign
	for rows.Next() {
		var c model.EmailCampaign
		var status string
		if err := rows.Scan(&c.ID, &c.LeadID, &c.Subject, &c.Body, &status, &c.Error, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan campaign")
		}
		c.Status = model.CampaignStatus(status)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list campaigns iterate")
}

func (s *PostgresStore) RecordPrototype(ctx context.Context, leadID int64, url string, content json.RawMessage) error {
	var payload any
	if len(content) > 0 {
		payload = string(content)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO website_prototypes (lead_id, url, content, created_at) VALUES ($1, $2, $3, $4)`,
		leadID, url, payload, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: insert prototype")
}

func (s *PostgresStore) ListPrototypes(ctx context.Context, leadID int64) ([]model.WebsitePrototype, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, lead_id, url, content, created_at FROM website_prototypes WHERE lead_id = $1 ORDER BY id`, leadID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list prototypes")
	}
	defer rows.Close()

	var out []model.WebsitePrototype
	for rows.Next() {
		var p model.WebsitePrototype
		var content []byte
		if err := rows.Scan(&p.ID, &p.LeadID, &p.URL, &content, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan prototype")
		}
		if len(content) > 0 {
			p.Content = json.RawMessage(content)
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list prototypes iterate")
}

func (s *PostgresStore) MarkMessageProcessed(ctx context.Context, messageID string, leadID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO processed_messages (message_id, lead_id, processed_at) VALUES ($1, $2, $3)
		 ON CONFLICT (message_id) DO NOTHING`,
		messageID, leadID, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: mark message processed")
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*model.Stats, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM leads GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats breakdown")
	}
	breakdown := make(map[model.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan stats")
		}
		breakdown[model.Status(status)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: stats iterate")
	}

	var sent, sites int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE email_sent), COUNT(*) FILTER (WHERE prototype_created) FROM leads`,
	).Scan(&sent, &sites); err != nil {
		return nil, eris.Wrap(err, "postgres: stats totals")
	}
	return buildStats(breakdown, sent, sites), nil
}

func isPgUnique(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
