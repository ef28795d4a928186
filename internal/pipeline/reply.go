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

// Reply reads unread inbox messages and applies each one to the lead whose
// email matches the sender. Messages from unknown senders are ignored and a
// message id is applied at most once.
//
// A contacted lead is classified into replied_yes or replied_no. A lead with
// a prototype gets the message appended as a user turn so the conversation
// stage answers it. Every matched message bumps reply_count.
func (p *Pipeline) Reply(ctx context.Context) (*StageReport, error) {
	start := time.Now()
	rep := newReport(StageReply)
	if p.fetcher == nil {
		return p.finish(rep, start, apperr.Validation("pipeline: reply", "no inbox configured"))
	}

	msgs, err := p.fetcher.FetchUnread(ctx)
	if err != nil {
		zap.L().Warn("pipeline: fetch unread failed", zap.String("stage", StageReply), zap.Error(err))
		rep.addError(0, err)
		return p.finish(rep, start, nil)
	}
	rep.Selected = len(msgs)

	for _, msg := range msgs {
		if ctx.Err() != nil {
			rep.addError(0, ctx.Err())
			break
		}
		p.handleReply(ctx, rep, msg)
	}
	return p.finish(rep, start, nil)
}

// HandleReply applies a single inbound message. Used by the reply stage and
// by operators replaying a message by hand.
func (p *Pipeline) HandleReply(ctx context.Context, msg model.InboundMessage) (*StageReport, error) {
	start := time.Now()
	rep := newReport(StageReply)
	rep.Selected = 1
	p.handleReply(ctx, rep, msg)
	return p.finish(rep, start, nil)
}

func (p *Pipeline) handleReply(ctx context.Context, rep *StageReport, msg model.InboundMessage) {
	from := strings.ToLower(strings.TrimSpace(msg.From))
	if from == "" || msg.MessageID == "" {
		rep.Skipped++
		return
	}

	lead, err := p.store.GetLeadByEmail(ctx, from)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			zap.L().Debug("pipeline: reply from unknown sender ignored",
				zap.String("stage", StageReply), zap.String("from", from))
			rep.Skipped++
			return
		}
		rep.fail(zap.L().With(zap.String("stage", StageReply)), 0, err)
		return
	}

	p.processLead(ctx, rep, lead.ID, func(ctx context.Context, log *zap.Logger, lead *model.Lead) (bool, error) {
		first, err := p.store.MarkMessageProcessed(ctx, msg.MessageID, lead.ID)
		if err != nil {
			return false, err
		}
		if !first {
			log.Debug("pipeline: message already processed", zap.String("message_id", msg.MessageID))
			return false, nil
		}
		return true, p.applyReply(ctx, log, lead, msg)
	})
}

func (p *Pipeline) applyReply(ctx context.Context, log *zap.Logger, lead *model.Lead, msg model.InboundMessage) error {
	current := lead.Status
	switch current {
	case model.StatusContacted:
		verdict := p.replies.Classify(msg.Body)
		if _, err := lifecycle.Advance(ctx, p.store, lead, verdict, store.LeadPatch{ReplyCountDelta: 1}); err != nil {
			return err
		}
		log.Info("pipeline: reply classified", zap.String("status", string(verdict)))
		return nil

	case model.StatusPrototypeSent, model.StatusInConversation:
		if _, err := p.store.UpdateLead(ctx, lead.ID, store.LeadPatch{
			ReplyCountDelta: 1,
			ExpectStatus:    &current,
		}); err != nil {
			return err
		}
		text := strings.TrimSpace(msg.Body)
		if text == "" {
			text = strings.TrimSpace(msg.Subject)
		}
		if text == "" {
			return nil
		}
		if _, err := p.store.AppendTurn(ctx, lead.ID, model.RoleUser, text); err != nil {
			return err
		}
		log.Info("pipeline: reply added to conversation")
		return nil

	default:
		_, err := p.store.UpdateLead(ctx, lead.ID, store.LeadPatch{
			ReplyCountDelta: 1,
			ExpectStatus:    &current,
		})
		return err
	}
}
