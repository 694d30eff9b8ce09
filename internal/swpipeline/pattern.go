package swpipeline

import "context"

// LoopMatcher locates candidate loops in a host IR root and is supplied
// by the caller; walking a concrete IR's structure is explicitly out of
// scope for this package (spec.md's Non-goals), so root is left opaque.
type LoopMatcher func(root any) []Loop

// RewriterFor returns the Rewriter bound to the site a matched loop
// lives in, since a Rewriter is tied to a particular insertion context
// rather than to the loop value itself.
type RewriterFor func(loop Loop) Rewriter

// Pattern packages one pipelining rule for a pattern-rewrite driver:
// find candidate loops with Match, then apply PipelineLoop to each
// using the site-specific Rewriter RewriterFor supplies and this
// pattern's fixed Options.
type Pattern struct {
	Name        string
	Match       LoopMatcher
	RewriterFor RewriterFor
	Options     Options
}

// NewPattern builds a Pattern, panicking on obviously-missing
// collaborators the way the teacher's RegisterBackend rejects a nil
// backend at registration time rather than deferring to first use.
func NewPattern(name string, match LoopMatcher, rewriterFor RewriterFor, opts Options) Pattern {
	assertf(name != "", "pattern name must be non-empty")
	assertf(match != nil, "pattern %q: Match must be non-nil", name)
	assertf(rewriterFor != nil, "pattern %q: RewriterFor must be non-nil", name)
	return Pattern{Name: name, Match: match, RewriterFor: rewriterFor, Options: opts}
}

// Apply runs PipelineLoop against one loop matched by p.Match.
func (p Pattern) Apply(ctx context.Context, loop Loop) (Result, error) {
	return PipelineLoop(ctx, loop, p.RewriterFor(loop), p.Options)
}

// ApplyAll matches candidate loops under root and applies the pattern to
// each in turn, stopping at the first hard or diagnostic error.
func (p Pattern) ApplyAll(ctx context.Context, root any) ([]Result, error) {
	candidates := p.Match(root)
	results := make([]Result, 0, len(candidates))
	for _, loop := range candidates {
		res, err := p.Apply(ctx, loop)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// PatternSet is the abstract "pattern-rewrite driver" collaborator a
// Pattern registers itself with; the concrete driver (iteration order,
// fixed-point re-matching, worklist scheduling) is out of scope, so only
// the registration capability is specified here.
type PatternSet interface {
	Register(p Pattern)
}

// Register adds p to set. A thin wrapper kept for symmetry with the
// teacher's RegisterBackend call sites, where registration is always
// spelled as a package-level function rather than a bare method call.
func Register(set PatternSet, p Pattern) {
	set.Register(p)
}
