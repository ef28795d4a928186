// Package pipeline implements the six lead stages: discovery, enrichment,
// outreach, reply, prototype and conversation. Each stage selects its leads
// through a lifecycle selection, processes them one at a time under a
// per-lead lock and timeout, and reports what happened in a StageReport.
// Per-lead failures are collected; only a failing selection query aborts a
// stage.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/apperr"
	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/discovery"
	"github.com/sells-group/prospect-cli/internal/generate"
	"github.com/sells-group/prospect-cli/internal/lifecycle"
	"github.com/sells-group/prospect-cli/internal/mail"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/publish"
	"github.com/sells-group/prospect-cli/internal/store"
)

// Stage names, used by the scheduler, the admin API and the CLI.
const (
	StageDiscovery    = "discovery"
	StageEnrichment   = "enrichment"
	StageOutreach     = "outreach"
	StageReply        = "reply"
	StagePrototype    = "prototype"
	StageConversation = "conversation"
)

// Stages lists every stage in pipeline order.
var Stages = []string{
	StageDiscovery,
	StageEnrichment,
	StageOutreach,
	StageReply,
	StagePrototype,
	StageConversation,
}

// ContactFinder derives missing contact fields for a lead.
type ContactFinder interface {
	Enrich(ctx context.Context, lead *model.Lead) model.EnrichmentResult
}

// Deps are the collaborators a Pipeline drives. A nil collaborator disables
// the stages that need it.
type Deps struct {
	Store     store.Store
	Providers []discovery.Provider
	Enricher  ContactFinder
	Composer  *generate.Composer
	Sender    mail.Sender
	Fetcher   mail.Fetcher
	Publisher publish.Publisher
	Locks     *lifecycle.Locks
}

// Pipeline runs the lead stages against a store.
type Pipeline struct {
	cfg       *config.Config
	store     store.Store
	providers []discovery.Provider
	enricher  ContactFinder
	composer  *generate.Composer
	sender    mail.Sender
	fetcher   mail.Fetcher
	publisher publish.Publisher
	locks     *lifecycle.Locks
	replies   *Classifier
	now       func() time.Time
}

// New creates a Pipeline with all dependencies.
func New(cfg *config.Config, d Deps) *Pipeline {
	locks := d.Locks
	if locks == nil {
		locks = lifecycle.NewLocks()
	}
	composer := d.Composer
	if composer == nil {
		composer = generate.NewComposer(nil, cfg.Sender, cfg.Generate.MaxTokens)
	}
	return &Pipeline{
		cfg:       cfg,
		store:     d.Store,
		providers: d.Providers,
		enricher:  d.Enricher,
		composer:  composer,
		sender:    d.Sender,
		fetcher:   d.Fetcher,
		publisher: d.Publisher,
		locks:     locks,
		replies:   NewClassifier(cfg.Reply.Affirmative),
		now:       time.Now,
	}
}

// Run executes one stage by name. Discovery searches every configured target.
func (p *Pipeline) Run(ctx context.Context, stage string) (*StageReport, error) {
	switch stage {
	case StageDiscovery:
		return p.DiscoverTargets(ctx)
	case StageEnrichment:
		return p.Enrich(ctx)
	case StageOutreach:
		return p.Outreach(ctx)
	case StageReply:
		return p.Reply(ctx)
	case StagePrototype:
		return p.Prototype(ctx)
	case StageConversation:
		return p.Converse(ctx)
	default:
		return nil, apperr.Newf(apperr.KindValidation, "pipeline: run", "unknown stage %q", stage)
	}
}

// RunLead executes one stage for a single lead, through the same per-lead
// guards, lock and compare-and-set the scheduled run uses. A lead the stage
// has nothing to do for is reported as skipped. Discovery and reply work from
// external input and cannot target a lead.
func (p *Pipeline) RunLead(ctx context.Context, stage string, id int64) (*StageReport, error) {
	const op = "pipeline: run lead"
	var fn leadFunc
	var missing string
	switch stage {
	case StageEnrichment:
		fn = p.enrichLead
		if p.enricher == nil {
			missing = "no enricher configured"
		}
	case StageOutreach:
		fn = p.outreachLead
		if p.sender == nil {
			missing = "no mail sender configured"
		}
	case StagePrototype:
		fn = p.prototypeLead
		if p.publisher == nil {
			missing = "no publisher configured"
		}
	case StageConversation:
		fn = p.converseLead
	case StageDiscovery, StageReply:
		return nil, apperr.Newf(apperr.KindValidation, op, "stage %s does not run for a single lead", stage)
	default:
		return nil, apperr.Newf(apperr.KindValidation, op, "unknown stage %q", stage)
	}

	start := time.Now()
	rep := newReport(stage)
	if missing != "" {
		return p.finish(rep, start, apperr.Validation(op, missing))
	}
	if _, err := p.store.GetLead(ctx, id); err != nil {
		return p.finish(rep, start, err)
	}
	rep.Selected = 1
	p.processLead(ctx, rep, id, fn)
	return p.finish(rep, start, nil)
}

func (p *Pipeline) batchSize() int {
	if n := p.cfg.Pipeline.BatchSize; n > 0 {
		return n
	}
	return 50
}

// leadFunc handles one freshly loaded, locked lead. It returns false when the
// lead no longer needs the stage's work.
type leadFunc func(ctx context.Context, log *zap.Logger, lead *model.Lead) (bool, error)

// selectAndProcess lists leads with filter and hands each to fn. Only the
// selection query can fail the stage.
func (p *Pipeline) selectAndProcess(ctx context.Context, rep *StageReport, filter store.LeadFilter, fn leadFunc) error {
	leads, err := p.store.ListLeads(ctx, filter)
	if err != nil {
		return eris.Wrapf(err, "pipeline: select %s leads", rep.Stage)
	}
	rep.Selected = len(leads)

	for i := range leads {
		if ctx.Err() != nil {
			rep.addError(leads[i].ID, ctx.Err())
			break
		}
		p.processLead(ctx, rep, leads[i].ID, fn)
	}
	return nil
}

// processLead holds the lead's lock for the whole read-mutate-persist
// sequence and bounds it with the per-lead timeout.
func (p *Pipeline) processLead(ctx context.Context, rep *StageReport, id int64, fn leadFunc) {
	unlock := p.locks.Lock(id)
	defer unlock()

	lctx, cancel := context.WithTimeout(ctx, p.cfg.Pipeline.LeadTimeout())
	defer cancel()

	log := zap.L().With(zap.String("stage", rep.Stage), zap.Int64("lead_id", id))

	lead, err := p.store.GetLead(lctx, id)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			rep.Skipped++
			return
		}
		rep.fail(log, id, err)
		return
	}

	done, err := fn(lctx, log, lead)
	switch {
	case err != nil && apperr.Is(err, apperr.KindStale):
		log.Debug("pipeline: lead changed underneath stage, skipping", zap.Error(err))
		rep.Skipped++
	case err != nil:
		rep.fail(log, id, err)
	case !done:
		rep.Skipped++
	default:
		rep.Processed++
	}
}

// finish stamps the report and logs it the same way for every stage.
func (p *Pipeline) finish(rep *StageReport, start time.Time, err error) (*StageReport, error) {
	rep.DurationMs = time.Since(start).Milliseconds()
	log := zap.L().With(zap.String("stage", rep.Stage))
	if err != nil {
		log.Error("pipeline: stage failed", zap.Int64("duration_ms", rep.DurationMs), zap.Error(err))
		return rep, err
	}
	log.Info("pipeline: stage complete",
		zap.Int("selected", rep.Selected),
		zap.Int("processed", rep.Processed),
		zap.Int("skipped", rep.Skipped),
		zap.Int("failed", rep.Failed),
		zap.Int64("duration_ms", rep.DurationMs),
	)
	return rep, nil
}
