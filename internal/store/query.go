package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/prospect-cli/internal/model"
)

// leadColumns is the column list every lead scan expects, in order.
const leadColumns = `id, name, business_name, email, phone, address, niche, business_type, location,
	website, source, source_id, dedup_key, email_sent, email_sent_at, reply_count, last_contacted,
	prototype_url, prototype_created, enrich_attempted_at, status, created_at, updated_at`

// placeholder renders the n-th (1-based) bind parameter for a SQL dialect.
type placeholder func(n int) string

func sqlitePH(int) string     { return "?" }
func postgresPH(n int) string { return fmt.Sprintf("$%d", n) }

// sqlBuilder accumulates clauses and their bind args.
type sqlBuilder struct {
	ph   placeholder
	args []any
}

func (b *sqlBuilder) bind(v any) string {
	b.args = append(b.args, v)
	return b.ph(len(b.args))
}

// buildLeadWhere renders the WHERE clause for a LeadFilter.
func buildLeadWhere(b *sqlBuilder, f LeadFilter) string {
	where := []string{"1=1"}

	if len(f.Statuses) > 0 {
		in := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			in[i] = b.bind(string(s))
		}
		where = append(where, "status IN ("+strings.Join(in, ", ")+")")
	}
	if f.Niche != "" {
		where = append(where, "lower(niche) = lower("+b.bind(f.Niche)+")")
	}
	if f.Location != "" {
		where = append(where, "lower(location) = lower("+b.bind(f.Location)+")")
	}
	if f.BusinessType != "" {
		where = append(where, "lower(business_type) = lower("+b.bind(f.BusinessType)+")")
	}
	if f.HasEmail != nil {
		if *f.HasEmail {
			where = append(where, "email IS NOT NULL")
		} else {
			where = append(where, "email IS NULL")
		}
	}
	if f.EmailSent != nil {
		where = append(where, "email_sent = "+b.bind(*f.EmailSent))
	}
	if f.PrototypeMissing {
		where = append(where, "prototype_url IS NULL")
	}
	if f.MissingContact {
		where = append(where, "(email IS NULL OR phone IS NULL)")
	}
	if f.EnrichDueBefore != nil {
		where = append(where, "(enrich_attempted_at IS NULL OR enrich_attempted_at < "+
			b.bind(f.EnrichDueBefore.UTC())+")")
	}
	if f.AwaitingReply {
		where = append(where, `(SELECT t.role FROM conversation_turns t WHERE t.lead_id = leads.id
			ORDER BY t.seq DESC LIMIT 1) = `+b.bind(string(model.RoleUser)))
	}
	return strings.Join(where, " AND ")
}

// buildListLeads renders the full list query.
func buildListLeads(ph placeholder, f LeadFilter) (string, []any) {
	b := &sqlBuilder{ph: ph}
	query := `SELECT ` + leadColumns + ` FROM leads WHERE ` + buildLeadWhere(b, f)
	if f.OrderByEnrichDue {
		query += ` ORDER BY enrich_attempted_at IS NOT NULL, enrich_attempted_at, id`
	} else {
		query += ` ORDER BY id`
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 500
	}
	query += ` LIMIT ` + b.bind(limit)
	if f.Offset > 0 {
		query += ` OFFSET ` + b.bind(f.Offset)
	}
	return query, b.args
}

// buildLeadUpdate renders an UPDATE for a patch. The returned bool is false
// when the patch touches nothing.
func buildLeadUpdate(ph placeholder, id int64, p LeadPatch, now time.Time) (string, []any, bool) {
	b := &sqlBuilder{ph: ph}
	var set []string

	str := func(col string, v *string) {
		switch {
		case v == nil:
		case strings.TrimSpace(*v) == "":
			set = append(set, col+" = NULL")
		default:
			set = append(set, col+" = "+b.bind(*v))
		}
	}
	str("name", p.Name)
	str("business_name", p.BusinessName)
	str("email", p.Email)
	str("phone", p.Phone)
	str("address", p.Address)
	str("website", p.Website)

	if p.ClearEmailSent {
		set = append(set, "email_sent = "+b.bind(false), "email_sent_at = NULL")
	} else {
		if p.EmailSent != nil {
			set = append(set, "email_sent = "+b.bind(*p.EmailSent))
		}
		if p.EmailSentAt != nil {
			set = append(set, "email_sent_at = "+b.bind(p.EmailSentAt.UTC()))
		}
	}
	if p.LastContacted != nil {
		set = append(set, "last_contacted = "+b.bind(p.LastContacted.UTC()))
	}
	if p.EnrichAttemptedAt != nil {
		set = append(set, "enrich_attempted_at = "+b.bind(p.EnrichAttemptedAt.UTC()))
	}
	if p.ReplyCountDelta != 0 {
		set = append(set, "reply_count = reply_count + "+b.bind(p.ReplyCountDelta))
	}
	if p.ClearPrototype {
		set = append(set, "prototype_url = NULL", "prototype_created = "+b.bind(false))
	} else {
		str("prototype_url", p.PrototypeURL)
		if p.PrototypeCreated != nil {
			set = append(set, "prototype_created = "+b.bind(*p.PrototypeCreated))
		}
	}
	if p.Status != nil {
		set = append(set, "status = "+b.bind(string(*p.Status)))
	}
	if len(set) == 0 {
		return "", nil, false
	}
	set = append(set, "updated_at = "+b.bind(now))

	query := `UPDATE leads SET ` + strings.Join(set, ", ") + ` WHERE id = ` + b.bind(id)
	if p.ExpectStatus != nil {
		query += ` AND status = ` + b.bind(string(*p.ExpectStatus))
	}
	if p.RequireNoPrototype {
		query += ` AND prototype_url IS NULL`
	}
	return query, b.args, true
}

// buildFillContact renders an UPDATE that only replaces NULL contact fields.
func buildFillContact(ph placeholder, id int64, r model.EnrichmentResult, now time.Time) (string, []any, bool) {
	b := &sqlBuilder{ph: ph}
	var set []string
	if r.Email != "" {
		set = append(set, "email = COALESCE(email, "+b.bind(r.Email)+")")
	}
	if r.Phone != "" {
		set = append(set, "phone = COALESCE(phone, "+b.bind(r.Phone)+")")
	}
	if len(set) == 0 {
		return "", nil, false
	}
	set = append(set, "updated_at = "+b.bind(now))
	return `UPDATE leads SET ` + strings.Join(set, ", ") + ` WHERE id = ` + b.bind(id), b.args, true
}

// identityKeys returns a lead's dedup key followed by its other identity
// keys, without blanks or repeats.
func identityKeys(l *model.Lead) []string {
	seen := make(map[string]bool, len(l.IdentityKeys)+1)
	var keys []string
	for _, k := range append([]string{l.DedupKey}, l.IdentityKeys...) {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return keys
}

// buildKeysExist renders a query counting lead_keys rows matching keys.
func buildKeysExist(ph placeholder, keys []string) (string, []any) {
	b := &sqlBuilder{ph: ph}
	in := make([]string, len(keys))
	for i, k := range keys {
		in[i] = b.bind(k)
	}
	return `SELECT COUNT(*) FROM lead_keys WHERE key IN (` + strings.Join(in, ", ") + `)`, b.args
}

type scannable interface {
	Scan(dest ...any) error
}

func scanLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	var status string
	err := row.Scan(
		&l.ID, &l.Name, &l.BusinessName, &l.Email, &l.Phone, &l.Address,
		&l.Niche, &l.BusinessType, &l.Location,
		&l.Website, &l.Source, &l.SourceID, &l.DedupKey,
		&l.EmailSent, &l.EmailSentAt, &l.ReplyCount, &l.LastContacted,
		&l.PrototypeURL, &l.PrototypeCreated, &l.EnrichAttemptedAt, &status, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.Status = model.Status(status)
	return &l, nil
}

// conversionStatuses are the statuses counted as a positive outcome.
var conversionStatuses = map[model.Status]bool{
	model.StatusRepliedYes:     true,
	model.StatusPrototypeSent:  true,
	model.StatusInConversation: true,
}

// buildStats folds a status breakdown into dashboard stats.
func buildStats(breakdown map[model.Status]int, emailsSent, websites int) *model.Stats {
	st := &model.Stats{
		EmailsSent:      emailsSent,
		WebsitesCreated: websites,
		StatusBreakdown: make(map[model.Status]int, len(model.AllStatuses)),
	}
	for _, s := range model.AllStatuses {
		st.StatusBreakdown[s] = breakdown[s]
	}

	var converted, reached int
	for s, n := range breakdown {
		st.Total += n
		if s != model.StatusNew {
			reached += n
		}
		if conversionStatuses[s] {
			converted += n
		}
	}
	if reached > 0 {
		st.ConversionRate = float64(converted) / float64(reached)
	}
	return st
}
