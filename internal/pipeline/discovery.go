package pipeline

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/apperr"
	"github.com/sells-group/prospect-cli/internal/discovery"
	"github.com/sells-group/prospect-cli/internal/model"
)

// Discover searches every provider for req and creates a new lead for each
// candidate none of whose identity keys is stored yet. A candidate is known
// when its website, its provider place id, or its name and address match an
// earlier lead, within this batch or in the store.
func (p *Pipeline) Discover(ctx context.Context, req discovery.Request) (*StageReport, error) {
	start := time.Now()
	rep := newReport(StageDiscovery)

	req.Niche = strings.TrimSpace(req.Niche)
	req.Location = strings.TrimSpace(req.Location)
	req.BusinessType = strings.TrimSpace(req.BusinessType)
	if req.Niche == "" || req.Location == "" {
		return rep, apperr.Validation("pipeline: discover", "niche and location are required")
	}
	if len(p.providers) == 0 {
		return p.finish(rep, start, apperr.Validation("pipeline: discover", "no discovery providers configured"))
	}

	res := discovery.SearchAll(ctx, p.providers, req)
	rep.Selected = len(res.Candidates)
	for _, name := range res.Failed {
		rep.addError(0, apperr.Newf(apperr.KindProviderUnavailable, "pipeline: discover", "provider %s failed", name))
	}

	log := zap.L().With(zap.String("stage", StageDiscovery),
		zap.String("niche", req.Niche), zap.String("location", req.Location))

	seen := make(map[string]bool, len(res.Candidates))
	for _, c := range res.Candidates {
		keys := discovery.IdentityKeys(c)
		if len(keys) == 0 || anySeen(seen, keys) {
			rep.Skipped++
			continue
		}
		for _, k := range keys {
			seen[k] = true
		}

		exists, err := p.store.DedupKeysExist(ctx, keys)
		if err != nil {
			return p.finish(rep, start, err)
		}
		if exists {
			rep.Skipped++
			continue
		}

		key := keys[0]
		lead := newLead(req, c, keys)
		created, err := p.store.CreateLead(ctx, lead)
		switch {
		case apperr.Is(err, apperr.KindConflict):
			rep.Skipped++
		case err != nil:
			return p.finish(rep, start, err)
		default:
			rep.Processed++
			log.Debug("pipeline: lead created",
				zap.Int64("lead_id", created.ID),
				zap.String("dedup_key", key),
				zap.String("provider", c.Provider),
			)
		}
	}
	return p.finish(rep, start, nil)
}

// DiscoverTargets runs Discover for every configured campaign target and
// merges the reports. A failing target does not stop the others.
func (p *Pipeline) DiscoverTargets(ctx context.Context) (*StageReport, error) {
	start := time.Now()
	total := newReport(StageDiscovery)
	targets := p.cfg.Discovery.Targets
	if len(targets) == 0 {
		zap.L().Info("pipeline: no discovery targets configured")
		return p.finish(total, start, nil)
	}

	for _, t := range targets {
		if ctx.Err() != nil {
			return p.finish(total, start, ctx.Err())
		}
		rep, err := p.Discover(ctx, discovery.Request{
			Niche:        t.Niche,
			Location:     t.Location,
			BusinessType: t.BusinessType,
		})
		total.Merge(rep)
		if err != nil {
			if apperr.Is(err, apperr.KindValidation) {
				total.addError(0, err)
				continue
			}
			return p.finish(total, start, err)
		}
	}
	return p.finish(total, start, nil)
}

// newLead builds a lead from a candidate. Email and phone stay empty; the
// enrichment stage owns contact discovery.
func newLead(req discovery.Request, c model.DiscoveredCandidate, keys []string) *model.Lead {
	return &model.Lead{
		BusinessName: model.Ptr(c.Name),
		Address:      model.Ptr(c.Address),
		Niche:        req.Niche,
		BusinessType: req.Kind(),
		Location:     req.Location,
		Website:      model.Ptr(c.Website),
		Source:       c.Provider,
		SourceID:     model.Ptr(c.ExternalID),
		DedupKey:     keys[0],
		IdentityKeys: keys,
		Status:       model.StatusNew,
	}
}

func anySeen(seen map[string]bool, keys []string) bool {
	for _, k := range keys {
		if seen[k] {
			return true
		}
	}
	return false
}
