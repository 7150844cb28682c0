// Package registry provides model routing for the CodexBridge server.
// It resolves client-supplied model identifiers into a backend base model plus
// an optional reasoning-effort level, validates them against the configured
// allowlist, and generates the published model listing.
package registry

import (
	"fmt"
	"strings"
	"time"
)

// Reasoning effort levels accepted as model name suffixes.
// EffortNone is the zero value and means no reasoning override is sent upstream.
const (
	EffortNone   = ""
	EffortLow    = "low"
	EffortMedium = "medium"
	EffortHigh   = "high"
	EffortXHigh  = "xhigh"
)

// reasoningSuffixes maps model name suffixes to effort levels, ordered longest
// first so that "-extra-high" is matched before "-high". The two extra* forms
// are aliases that normalize to xhigh; they are accepted on input but never
// advertised in the model listing.
var reasoningSuffixes = []struct {
	suffix string
	effort string
}{
	{"-extra-high", EffortXHigh},
	{"-extra_high", EffortXHigh},
	{"-xhigh", EffortXHigh},
	{"-high", EffortHigh},
	{"-medium", EffortMedium},
	{"-low", EffortLow},
}

// listedEfforts are the effort suffixes advertised for each base model, in
// listing order. Alias suffixes are deliberately absent.
var listedEfforts = []string{EffortLow, EffortMedium, EffortHigh, EffortXHigh}

// ModelSpec is the result of resolving a client-supplied model identifier.
type ModelSpec struct {
	// BaseModel is the backend model identifier with any effort suffix removed.
	// It is always a member of the allowlist when resolution succeeds.
	BaseModel string

	// Effort is the reasoning effort level extracted from the suffix, or
	// EffortNone when the identifier carried no suffix.
	Effort string
}

// ModelNotAllowedError reports a model identifier that does not resolve to an
// allowlisted base model. It maps to HTTP 400 with the stable error code
// "model_not_allowed".
type ModelNotAllowedError struct {
	Model   string
	Allowed []string
}

func (e *ModelNotAllowedError) Error() string {
	return fmt.Sprintf("Model '%s' is not allowed by this proxy. Allowed models: %s", e.Model, strings.Join(e.Allowed, ", "))
}

// ModelInfo describes a single entry in the published model listing.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// Router resolves model identifiers against an immutable allowlist snapshot.
// Construct a new Router on configuration reload instead of mutating one.
type Router struct {
	allowed []string
	members map[string]struct{}
}

// NewRouter returns a Router for the given allowlist. The slice is copied; the
// configured order is preserved for listing purposes.
func NewRouter(allowed []string) *Router {
	r := &Router{
		allowed: make([]string, 0, len(allowed)),
		members: make(map[string]struct{}, len(allowed)),
	}
	for _, model := range allowed {
		if model == "" {
			continue
		}
		if _, dup := r.members[model]; dup {
			continue
		}
		r.members[model] = struct{}{}
		r.allowed = append(r.allowed, model)
	}
	return r
}

// Allowed returns a copy of the allowlist in configured order.
func (r *Router) Allowed() []string {
	out := make([]string, len(r.allowed))
	copy(out, r.allowed)
	return out
}

// Resolve parses a client-supplied model identifier into a ModelSpec.
//
// Suffix stripping is validation-gated: a suffix is only honored when the
// remainder is itself an allowlisted base model. This prevents false-positive
// stripping on allowlist entries that happen to end in a suffix token. When no
// suffix applies, the whole identifier must match an allowlist entry exactly
// (case-sensitive); otherwise a ModelNotAllowedError is returned.
func (r *Router) Resolve(requested string) (ModelSpec, error) {
	for _, entry := range reasoningSuffixes {
		base, found := strings.CutSuffix(requested, entry.suffix)
		if !found {
			continue
		}
		if r.isAllowed(base) {
			return ModelSpec{BaseModel: base, Effort: entry.effort}, nil
		}
	}

	if r.isAllowed(requested) {
		return ModelSpec{BaseModel: requested, Effort: EffortNone}, nil
	}

	return ModelSpec{}, &ModelNotAllowedError{Model: requested, Allowed: r.Allowed()}
}

// ListAvailable returns the published model identifiers: for each base model
// in configured order, the base itself followed by base-low, base-medium,
// base-high, and base-xhigh. The result is a pure function of the allowlist.
func (r *Router) ListAvailable() []string {
	out := make([]string, 0, len(r.allowed)*(1+len(listedEfforts)))
	for _, base := range r.allowed {
		out = append(out, base)
		for _, effort := range listedEfforts {
			out = append(out, base+"-"+effort)
		}
	}
	return out
}

// ModelInfos returns the model listing as OpenAI-style model objects.
func (r *Router) ModelInfos() []*ModelInfo {
	created := time.Now().Unix()
	ids := r.ListAvailable()
	models := make([]*ModelInfo, 0, len(ids))
	for _, id := range ids {
		models = append(models, &ModelInfo{
			ID:      id,
			Object:  "model",
			Created: created,
			OwnedBy: "openai",
		})
	}
	return models
}

func (r *Router) isAllowed(model string) bool {
	_, ok := r.members[model]
	return ok
}
