package encoder

import (
	"fmt"
	"log/slog"
)

// Fallback values for categories the model never saw. Both are present in the
// training vocabulary of the FAO yield dataset.
const (
	DefaultCrop     = "Rice, paddy"
	DefaultDistrict = "India"
)

// DefaultFallbacks returns the per-feature substitution defaults.
func DefaultFallbacks() map[string]string {
	return map[string]string{
		FeatureCrop:     DefaultCrop,
		FeatureDistrict: DefaultDistrict,
	}
}

// Substitution records that an unrecognised value was replaced by a known one.
type Substitution struct {
	Feature   string `json:"field"`
	Requested string `json:"requested"`
	Used      string `json:"used"`
}

// Resolution is the outcome of resolving one request value.
type Resolution struct {
	Code         int
	Substitution *Substitution // nil on an exact match
}

// Resolver maps free-text values onto trained codes. Unknown values are
// replaced by the feature's fallback default, or by the first known class
// when even the default is missing, so resolution never fails for a value.
type Resolver struct {
	fallbacks    map[string]string
	logger       *slog.Logger
	onSubstitute func(Substitution)
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets the logger used to report substitutions.
func WithLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithSubstitutionHook registers fn to be called for every substitution.
func WithSubstitutionHook(fn func(Substitution)) ResolverOption {
	return func(r *Resolver) { r.onSubstitute = fn }
}

// NewResolver creates a Resolver with per-feature fallback defaults.
func NewResolver(fallbacks map[string]string, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		fallbacks: make(map[string]string, len(fallbacks)),
		logger:    slog.Default(),
	}
	for k, v := range fallbacks {
		r.fallbacks[k] = v
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the code for value under enc. It only errors when enc is
// missing or empty, never because value is unknown.
func (r *Resolver) Resolve(enc *Encoder, value string) (Resolution, error) {
	if enc == nil || enc.Len() == 0 {
		return Resolution{}, fmt.Errorf("%w: no vocabulary to resolve %q against", ErrNotFound, value)
	}

	if l := enc.Lookup(value); l.Found {
		return Resolution{Code: l.Code}, nil
	}

	used, code := r.fallback(enc)
	sub := Substitution{Feature: enc.Feature(), Requested: value, Used: used}
	r.logger.Warn("unknown category substituted",
		"feature", sub.Feature,
		"requested", sub.Requested,
		"substituted", sub.Used,
	)
	if r.onSubstitute != nil {
		r.onSubstitute(sub)
	}
	return Resolution{Code: code, Substitution: &sub}, nil
}

func (r *Resolver) fallback(enc *Encoder) (string, int) {
	if def, ok := r.fallbacks[enc.Feature()]; ok {
		if l := enc.Lookup(def); l.Found {
			return def, l.Code
		}
	}
	first, _ := enc.Class(0)
	return first, 0
}
