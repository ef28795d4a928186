package lifecycle

import (
	"time"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

// Each stage selects leads only through these filters. The filters combine
// the stage's input status with its own completeness predicate so a lead
// handled successfully drops out of the next selection.

// OutreachSelection selects new leads that have an email address and have
// not been emailed yet.
func OutreachSelection(limit int) store.LeadFilter {
	hasEmail, sent := true, false
	return store.LeadFilter{
		Statuses:  []model.Status{model.StatusNew},
		HasEmail:  &hasEmail,
		EmailSent: &sent,
		Limit:     limit,
	}
}

// PrototypeSelection selects replied_yes leads without a prototype.
func PrototypeSelection(limit int) store.LeadFilter {
	return store.LeadFilter{
		Statuses:         []model.Status{model.StatusRepliedYes},
		PrototypeMissing: true,
		Limit:            limit,
	}
}

// ConversationSelection selects leads waiting on an assistant reply.
func ConversationSelection(limit int) store.LeadFilter {
	return store.LeadFilter{
		Statuses:      []model.Status{model.StatusPrototypeSent, model.StatusInConversation},
		AwaitingReply: true,
		Limit:         limit,
	}
}

// EnrichmentSelection selects active leads missing email or phone that were
// never attempted or last attempted before retryBefore. Never attempted leads
// come first, then the longest waiting.
func EnrichmentSelection(limit int, retryBefore time.Time) store.LeadFilter {
	return store.LeadFilter{
		Statuses:         ActiveStatuses(),
		MissingContact:   true,
		EnrichDueBefore:  &retryBefore,
		OrderByEnrichDue: true,
		Limit:            limit,
	}
}

// ActiveStatuses are the statuses of leads not yet written off.
func ActiveStatuses() []model.Status {
	var out []model.Status
	for _, s := range model.AllStatuses {
		if s.Active() {
			out = append(out, s)
		}
	}
	return out
}
