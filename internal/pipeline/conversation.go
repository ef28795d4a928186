package pipeline

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/apperr"
	"github.com/sells-group/prospect-cli/internal/lifecycle"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

// Converse answers every lead in prototype_sent or in_conversation whose
// latest turn came from the lead. The answer is appended as an assistant
// turn, the lead moves to in_conversation and the reply is emailed.
func (p *Pipeline) Converse(ctx context.Context) (*StageReport, error) {
	start := time.Now()
	rep := newReport(StageConversation)
	err := p.selectAndProcess(ctx, rep, lifecycle.ConversationSelection(p.batchSize()), p.converseLead)
	return p.finish(rep, start, err)
}

func (p *Pipeline) converseLead(ctx context.Context, log *zap.Logger, lead *model.Lead) (bool, error) {
	if lead.Status != model.StatusPrototypeSent && lead.Status != model.StatusInConversation {
		return false, nil
	}
	last := lead.LastTurn()
	if last == nil || last.Role != model.RoleUser {
		return false, nil
	}

	answer, err := p.composer.ChatReply(ctx, lead, lead.Turns)
	if err != nil {
		return false, apperr.Wrap(apperr.KindProviderUnavailable, "pipeline: conversation reply", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return false, apperr.New(apperr.KindProviderUnavailable, "pipeline: conversation reply", "empty answer")
	}

	turn, err := p.store.AppendTurn(ctx, lead.ID, model.RoleAssistant, answer)
	if err != nil {
		return false, err
	}
	if _, err := lifecycle.Advance(ctx, p.store, lead, model.StatusInConversation, store.LeadPatch{}); err != nil {
		return false, err
	}

	p.sendAnswer(ctx, log, lead, answer)
	log.Info("pipeline: conversation answered", zap.Int("seq", turn.Seq))
	return true, nil
}

// sendAnswer emails the assistant turn. A failed send is logged; the turn
// stays recorded.
func (p *Pipeline) sendAnswer(ctx context.Context, log *zap.Logger, lead *model.Lead, answer string) {
	to := model.Deref(lead.Email)
	if p.sender == nil || to == "" {
		return
	}
	subject := "Re: Your website for " + lead.DisplayName()
	campaign := &model.EmailCampaign{LeadID: lead.ID, Subject: subject, Body: answer, Status: model.CampaignSent}
	if err := p.sender.Send(ctx, to, subject, answer); err != nil {
		log.Warn("pipeline: conversation reply not delivered", zap.Error(err))
		campaign.Status = model.CampaignFailed
		campaign.Error = err.Error()
	}
	p.recordCampaign(ctx, log, campaign)
}
