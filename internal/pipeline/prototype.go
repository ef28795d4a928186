package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/apperr"
	"github.com/sells-group/prospect-cli/internal/lifecycle"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

// Prototype builds a demo site for every replied_yes lead that has none,
// records its URL and moves the lead to prototype_sent. If the lead cannot
// be committed the built artifact is removed again, so a failed lead leaves
// nothing behind and is retried next cycle.
func (p *Pipeline) Prototype(ctx context.Context) (*StageReport, error) {
	start := time.Now()
	rep := newReport(StagePrototype)
	if p.publisher == nil {
		return p.finish(rep, start, apperr.Validation("pipeline: prototype", "no publisher configured"))
	}

	err := p.selectAndProcess(ctx, rep, lifecycle.PrototypeSelection(p.batchSize()), p.prototypeLead)
	return p.finish(rep, start, err)
}

func (p *Pipeline) prototypeLead(ctx context.Context, log *zap.Logger, lead *model.Lead) (bool, error) {
	if lead.Status != model.StatusRepliedYes || lead.PrototypeURL != nil {
		return false, nil
	}

	content := p.composer.SiteContent(ctx, lead)
	url, err := p.publisher.Build(ctx, lead, content)
	if err != nil {
		return false, apperr.Wrap(apperr.KindDelivery, "pipeline: prototype build", err)
	}

	created := true
	updated, err := lifecycle.Advance(ctx, p.store, lead, model.StatusPrototypeSent, store.LeadPatch{
		PrototypeURL:       &url,
		PrototypeCreated:   &created,
		RequireNoPrototype: true,
	})
	if err != nil {
		// Detach from the lead deadline so cleanup still runs after a timeout.
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if rmErr := p.publisher.Remove(cctx, url); rmErr != nil {
			log.Warn("pipeline: remove orphaned prototype failed", zap.String("url", url), zap.Error(rmErr))
		}
		return false, err
	}

	raw, err := json.Marshal(content)
	if err != nil {
		log.Warn("pipeline: encode site content failed", zap.Error(err))
	}
	if err := p.store.RecordPrototype(ctx, lead.ID, url, raw); err != nil {
		log.Warn("pipeline: record prototype failed", zap.Error(err))
	}

	p.notifyPrototype(ctx, log, updated, url)
	log.Info("pipeline: prototype published", zap.String("url", url))
	return true, nil
}

// notifyPrototype opens the conversation with the prototype link and emails
// it. Both steps are best effort; the lead is already prototype_sent.
func (p *Pipeline) notifyPrototype(ctx context.Context, log *zap.Logger, lead *model.Lead, url string) {
	notice := p.composer.PrototypeNotice(lead, url)
	if _, err := p.store.AppendTurn(ctx, lead.ID, model.RoleAssistant, notice.Body); err != nil {
		log.Warn("pipeline: record prototype notice failed", zap.Error(err))
	}

	to := model.Deref(lead.Email)
	if p.sender == nil || to == "" {
		return
	}
	campaign := &model.EmailCampaign{LeadID: lead.ID, Subject: notice.Subject, Body: notice.Body, Status: model.CampaignSent}
	if err := p.sender.Send(ctx, to, notice.Subject, notice.Body); err != nil {
		log.Warn("pipeline: prototype notice not delivered", zap.Error(err))
		campaign.Status = model.CampaignFailed
		campaign.Error = err.Error()
	}
	p.recordCampaign(ctx, log, campaign)
}
