// Package discovery finds candidate businesses for a niche and location
// across several search providers and derives the keys used to recognize
// the same business across runs.
package discovery

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prospect-cli/internal/model"
)

// Request describes one discovery search.
type Request struct {
	Niche        string `json:"niche" validate:"required"`
	Location     string `json:"location" validate:"required"`
	BusinessType string `json:"business_type,omitempty"`
}

// Kind returns the business type, defaulting to the niche.
func (r Request) Kind() string {
	if t := strings.TrimSpace(r.BusinessType); t != "" {
		return t
	}
	return strings.TrimSpace(r.Niche)
}

// Provider is a single search backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, req Request) ([]model.DiscoveredCandidate, error)
}

// Result is the merged output of a fan-out search.
type Result struct {
	Candidates []model.DiscoveredCandidate
	// Failed lists providers whose search returned an error.
	Failed []string
}

// SearchAll queries every provider concurrently. A failing provider is
// logged and contributes no candidates; it never fails the whole search.
// Candidates keep provider order so results are deterministic.
func SearchAll(ctx context.Context, providers []Provider, req Request) Result {
	log := zap.L().With(zap.String("stage", "discovery"),
		zap.String("niche", req.Niche), zap.String("location", req.Location))

	perProvider := make([][]model.DiscoveredCandidate, len(providers))
	var (
		mu     sync.Mutex
		failed []string
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range providers {
		g.Go(func() error {
			found, err := p.Search(gctx, req)
			if err != nil {
				log.Warn("provider search failed", zap.String("provider", p.Name()), zap.Error(err))
				mu.Lock()
				failed = append(failed, p.Name())
				mu.Unlock()
				return nil
			}
			log.Debug("provider search done", zap.String("provider", p.Name()), zap.Int("found", len(found)))
			perProvider[i] = found
			return nil
		})
	}
	_ = g.Wait()

	var out Result
	for _, found := range perProvider {
		out.Candidates = append(out.Candidates, found...)
	}
	out.Failed = failed
	return out
}
