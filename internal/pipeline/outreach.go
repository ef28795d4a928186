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

// Outreach emails every new lead that has an address and moves it to
// contacted. A failed send leaves the lead in new for the next cycle and
// records a failed campaign row.
//
// Delivery is at-least-once: if the process dies between a successful send
// and the status update, the next cycle sends again.
func (p *Pipeline) Outreach(ctx context.Context) (*StageReport, error) {
	start := time.Now()
	rep := newReport(StageOutreach)
	if p.sender == nil {
		return p.finish(rep, start, apperr.Validation("pipeline: outreach", "no mail sender configured"))
	}

	err := p.selectAndProcess(ctx, rep, lifecycle.OutreachSelection(p.batchSize()), p.outreachLead)
	return p.finish(rep, start, err)
}

func (p *Pipeline) outreachLead(ctx context.Context, log *zap.Logger, lead *model.Lead) (bool, error) {
	to := model.Deref(lead.Email)
	if lead.Status != model.StatusNew || to == "" || lead.EmailSent {
		return false, nil
	}

	email := p.composer.OutreachEmail(ctx, lead)
	campaign := &model.EmailCampaign{
		LeadID:  lead.ID,
		Subject: email.Subject,
		Body:    email.Body,
		Status:  model.CampaignSent,
	}

	if err := p.sender.Send(ctx, to, email.Subject, email.Body); err != nil {
		campaign.Status = model.CampaignFailed
		campaign.Error = err.Error()
		p.recordCampaign(ctx, log, campaign)
		return false, apperr.Wrap(apperr.KindDelivery, "pipeline: outreach send", err)
	}

	now := p.now().UTC()
	sent := true
	if _, err := lifecycle.Advance(ctx, p.store, lead, model.StatusContacted, store.LeadPatch{
		EmailSent:     &sent,
		EmailSentAt:   &now,
		LastContacted: &now,
	}); err != nil {
		// The email is out; the next cycle will resend.
		log.Error("pipeline: email sent but lead not marked contacted", zap.Error(err))
		p.recordCampaign(ctx, log, campaign)
		return false, err
	}

	p.recordCampaign(ctx, log, campaign)
	log.Info("pipeline: outreach sent",
		zap.String("to", to),
		zap.Bool("generated", email.Generated),
	)
	return true, nil
}

func (p *Pipeline) recordCampaign(ctx context.Context, log *zap.Logger, c *model.EmailCampaign) {
	if err := p.store.RecordCampaign(ctx, c); err != nil {
		log.Warn("pipeline: record campaign failed", zap.Error(err))
	}
}
