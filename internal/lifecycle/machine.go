// Package lifecycle owns the lead status state machine. Every status change
// made by a pipeline stage or an operator goes through Advance or Reset,
// which validate the edge and persist it as a compare-and-set on the
// current status.
package lifecycle

import (
	"context"

	"github.com/sells-group/prospect-cli/internal/apperr"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

// edges lists every automatic transition. Self-loops are explicit.
var edges = map[model.Status][]model.Status{
	model.StatusNew:            {model.StatusNew, model.StatusContacted},
	model.StatusContacted:      {model.StatusRepliedYes, model.StatusRepliedNo},
	model.StatusRepliedYes:     {model.StatusPrototypeSent},
	model.StatusRepliedNo:      nil,
	model.StatusPrototypeSent:  {model.StatusInConversation},
	model.StatusInConversation: {model.StatusInConversation},
}

// rank orders statuses along the pipeline. Sibling outcomes share a rank.
var rank = map[model.Status]int{
	model.StatusNew:            0,
	model.StatusContacted:      1,
	model.StatusRepliedYes:     2,
	model.StatusRepliedNo:      2,
	model.StatusPrototypeSent:  3,
	model.StatusInConversation: 4,
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to model.Status) bool {
	for _, next := range edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Validate returns a KindInvalidTransition error unless from -> to is allowed.
func Validate(from, to model.Status) error {
	if !from.Valid() || !to.Valid() {
		return apperr.Newf(apperr.KindInvalidTransition, "lifecycle: validate", "unknown status %q -> %q", from, to)
	}
	if !CanTransition(from, to) {
		return apperr.Newf(apperr.KindInvalidTransition, "lifecycle: validate", "%s -> %s is not allowed", from, to)
	}
	return nil
}

// CanReset reports whether an operator may move a lead from -> to. Resets
// only move backward (or sideways between the two reply outcomes).
func CanReset(from, to model.Status) bool {
	if !from.Valid() || !to.Valid() || from == to {
		return false
	}
	return rank[to] <= rank[from]
}

// Updater persists lead patches.
type Updater interface {
	UpdateLead(ctx context.Context, id int64, patch store.LeadPatch) (*model.Lead, error)
}

// Advance validates lead.Status -> to and persists patch together with the
// new status, guarded on the status the caller observed. A lead whose status
// moved underneath the caller yields a KindStale error.
func Advance(ctx context.Context, st Updater, lead *model.Lead, to model.Status, patch store.LeadPatch) (*model.Lead, error) {
	if err := Validate(lead.Status, to); err != nil {
		return nil, err
	}
	from := lead.Status
	patch.Status = &to
	patch.ExpectStatus = &from
	return st.UpdateLead(ctx, lead.ID, patch)
}

// Reset is the operator override that moves a lead backward. Moving a lead
// back to replied_yes or earlier clears its prototype so it can be rebuilt,
// and moving it back to new clears the sent flag so it is emailed again.
func Reset(ctx context.Context, st Updater, lead *model.Lead, to model.Status) (*model.Lead, error) {
	if !CanReset(lead.Status, to) {
		return nil, apperr.Newf(apperr.KindInvalidTransition, "lifecycle: reset",
			"cannot reset %s -> %s", lead.Status, to)
	}
	from := lead.Status
	patch := store.LeadPatch{Status: &to, ExpectStatus: &from}
	if rank[to] <= rank[model.StatusRepliedYes] && lead.PrototypeURL != nil {
		patch.ClearPrototype = true
	}
	if to == model.StatusNew && lead.EmailSent {
		patch.ClearEmailSent = true
	}
	return st.UpdateLead(ctx, lead.ID, patch)
}
