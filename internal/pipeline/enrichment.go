package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/apperr"
	"github.com/sells-group/prospect-cli/internal/lifecycle"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

// Enrich fills missing email and phone fields on active leads. The store
// write only fills NULL columns, so values already present never change.
// Every attempt is stamped on the lead, and a lead rests for the configured
// retry period before it is selected again, so leads nothing can be found
// for do not crowd newer ones out of the batch.
func (p *Pipeline) Enrich(ctx context.Context) (*StageReport, error) {
	start := time.Now()
	rep := newReport(StageEnrichment)
	if p.enricher == nil {
		return p.finish(rep, start, apperr.Validation("pipeline: enrich", "no enricher configured"))
	}

	retryBefore := p.now().Add(-p.cfg.Pipeline.EnrichRetry())
	err := p.selectAndProcess(ctx, rep, lifecycle.EnrichmentSelection(p.batchSize(), retryBefore), p.enrichLead)
	return p.finish(rep, start, err)
}

func (p *Pipeline) enrichLead(ctx context.Context, log *zap.Logger, lead *model.Lead) (bool, error) {
	if !lead.Status.Active() || !lead.MissingContact() {
		return false, nil
	}

	found := p.enricher.Enrich(ctx, lead)

	attempted := p.now().UTC()
	if _, err := p.store.UpdateLead(ctx, lead.ID, store.LeadPatch{EnrichAttemptedAt: &attempted}); err != nil {
		return false, err
	}
	if found.Empty() {
		log.Debug("pipeline: no contact details found")
		return false, nil
	}

	updated, err := p.store.FillContact(ctx, lead.ID, found)
	if err != nil {
		return false, err
	}
	log.Info("pipeline: lead enriched",
		zap.Bool("email", lead.Email == nil && updated.Email != nil),
		zap.String("email_source", found.EmailSource),
		zap.Bool("phone", lead.Phone == nil && updated.Phone != nil),
		zap.String("phone_source", found.PhoneSource),
	)
	return true, nil
}
