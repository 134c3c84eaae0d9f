// Package selector implements Router: a pure classifier that maps a query's
// text to an ordered set of candidate SourceIds, per SPEC_FULL §4.7.
package selector

import (
	"regexp"

	"github.com/connexus-ai/raqa-orchestrator/internal/breaker"
	"github.com/connexus-ai/raqa-orchestrator/internal/model"
	"github.com/connexus-ai/raqa-orchestrator/internal/source"
)

const defaultMaxSources = 6

// rule pairs a trigger regex with the source it selects. Matches are
// unioned; order determines the preserved rule-match order used by the cap
// step.
type rule struct {
	pattern *regexp.Regexp
	target  model.SourceId
}

var rules = []rule{
	{regexp.MustCompile(`(?i)\b[A-Z]{2,}-\d+\b`), model.SourceJira},
	{regexp.MustCompile(`(?i)confluence|wiki|\bdoc(s|ument)?\b`), model.SourceConfluence},
	{regexp.MustCompile(`(?i)slack|channel|#\S+`), model.SourceSlack},
	{regexp.MustCompile(`(?i)github|pull request|\bpr\b|repo(sitory)?|commit`), model.SourceGithub},
	{regexp.MustCompile(`(?i)gmail|google drive|google calendar|\bgoogle\b`), model.SourceGoogle},
	{regexp.MustCompile(`(?i)notion`), model.SourceNotion},
	{regexp.MustCompile(`(?i)linear|\bticket\b|\bissue\b`), model.SourceLinear},
	{regexp.MustCompile(`(?i)figma|design file|mockup`), model.SourceFigma},
	{regexp.MustCompile(`(?i)microsoft|outlook|teams|sharepoint|office365`), model.SourceMicrosoft365},
	{regexp.MustCompile(`(?i)ci/cd|pipeline|deploy(ment)?|build log`), model.SourceDevtools},
	{regexp.MustCompile(`(?i)roadmap|okr|sprint|backlog`), model.SourceProductivity},
}

// defaultBundle is selected when no keyword rule fires.
var defaultBundle = []model.SourceId{model.SourceVectorCache, model.SourceWeb}

// Router classifies queries into SelectionResults. It performs no I/O
// beyond the cheap Healthy() probes exposed by the source Registry, so it
// can be unit-tested exhaustively and safely called on every request.
type Router struct {
	registry *source.Registry
	breakers *breaker.Registry
}

// New builds a Router bound to the adapter registry and the per-source
// circuit breaker registry it consults for policy overrides.
func New(registry *source.Registry, breakers *breaker.Registry) *Router {
	return &Router{registry: registry, breakers: breakers}
}

// Select runs the five-step decision procedure from SPEC_FULL §4.7: keyword
// rules, fallback bundle, policy overrides (enabled_sources + open
// circuits), always-including vector_cache, then capping to max_sources.
func (r *Router) Select(query model.Query) model.SelectionResult {
	matched := r.matchRules(query.Text)
	if len(matched) == 0 {
		matched = append([]model.SourceId{}, defaultBundle...)
	}

	filtered := r.applyPolicy(matched, query.Options)
	filtered = prependVectorCache(filtered)

	maxSources := query.Options.MaxSources
	if maxSources <= 0 {
		maxSources = defaultMaxSources
	}
	if len(filtered) > maxSources {
		filtered = filtered[:maxSources]
	}

	confidence := 1.0
	if len(matched) == 0 {
		confidence = 0.5
	}

	return model.SelectionResult{Sources: filtered, Confidence: confidence}
}

func (r *Router) matchRules(text string) []model.SourceId {
	seen := make(map[model.SourceId]bool)
	var out []model.SourceId
	for _, rl := range rules {
		if rl.pattern.MatchString(text) && !seen[rl.target] {
			seen[rl.target] = true
			out = append(out, rl.target)
		}
	}
	return out
}

// applyPolicy drops any source not in options.EnabledSources (when that set
// is non-empty) and any source whose circuit is currently OPEN, or that the
// Registry reports unhealthy.
func (r *Router) applyPolicy(sources []model.SourceId, opts model.QueryOptions) []model.SourceId {
	out := make([]model.SourceId, 0, len(sources))
	for _, s := range sources {
		if len(opts.EnabledSources) > 0 && !opts.EnabledSources[s] {
			continue
		}
		if r.breakers != nil && r.breakers.For(string(s)).CurrentState() == breaker.Open {
			continue
		}
		if r.registry != nil {
			if _, ok := r.registry.Get(s); ok && !r.registry.Healthy(s) {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

// prependVectorCache ensures vector_cache leads the source list, per the
// "always include" rule — its lookup is zero-cost relative to external
// calls, so skipping it is never beneficial.
func prependVectorCache(sources []model.SourceId) []model.SourceId {
	for _, s := range sources {
		if s == model.SourceVectorCache {
			return sources
		}
	}
	return append([]model.SourceId{model.SourceVectorCache}, sources...)
}
