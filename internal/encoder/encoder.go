// Package encoder holds the categorical encoders produced by offline training
// and the resolver that maps free-text request values onto their codes.
package encoder

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Feature names as they appear in the encoders artifact and in yield requests.
const (
	FeatureCrop     = "Crop"
	FeatureDistrict = "District"
)

// ErrNotFound is returned when an encoder for a feature is not available.
var ErrNotFound = errors.New("encoder not found")

// Encoder is an immutable bidirectional mapping between the known values of
// one categorical feature and the integer codes assigned during training.
// The code of a value is its index in the training class list.
type Encoder struct {
	feature string
	classes []string
	codes   map[string]int
}

// Lookup is the outcome of an exact-match lookup.
type Lookup struct {
	Code  int
	Found bool
}

// New builds an encoder for feature from the ordered training classes.
// Values are compared after NFC normalisation, so two canonically
// equivalent spellings map to the same code.
func New(feature string, classes []string) (*Encoder, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("encoder %q: no classes", feature)
	}
	e := &Encoder{
		feature: feature,
		classes: make([]string, len(classes)),
		codes:   make(map[string]int, len(classes)),
	}
	for i, c := range classes {
		key := norm.NFC.String(c)
		if prev, dup := e.codes[key]; dup {
			return nil, fmt.Errorf("encoder %q: class %q at index %d duplicates index %d", feature, c, i, prev)
		}
		e.codes[key] = i
		e.classes[i] = c
	}
	return e, nil
}

// Feature returns the name of the encoded feature.
func (e *Encoder) Feature() string { return e.feature }

// Len returns the number of known classes.
func (e *Encoder) Len() int { return len(e.classes) }

// Lookup returns the trained code for value, if value is a known class.
// Matching is exact up to Unicode canonical equivalence: both sides are NFC
// normalised, but case and surrounding space are significant.
func (e *Encoder) Lookup(value string) Lookup {
	code, ok := e.codes[norm.NFC.String(value)]
	return Lookup{Code: code, Found: ok}
}

// Class returns the value encoded as code.
func (e *Encoder) Class(code int) (string, bool) {
	if code < 0 || code >= len(e.classes) {
		return "", false
	}
	return e.classes[code], true
}

// Classes returns a copy of the known classes in code order.
func (e *Encoder) Classes() []string {
	out := make([]string, len(e.classes))
	copy(out, e.classes)
	return out
}

// Set holds the encoders of every categorical feature, keyed by feature name.
type Set map[string]*Encoder

// Get returns the encoder for feature or an error wrapping ErrNotFound.
func (s Set) Get(feature string) (*Encoder, error) {
	if e, ok := s[feature]; ok && e != nil {
		return e, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, feature)
}

// Features returns the feature names in sorted order.
func (s Set) Features() []string {
	out := make([]string, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Load reads an encoders artifact mapping feature name to its ordered class
// list. Files ending in .yaml or .yml are parsed as YAML, anything else as JSON.
// Every feature in required must be present.
func Load(path string, required ...string) (Set, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("encoder: read %s: %w", path, err)
	}

	raw := map[string][]string{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &raw)
	default:
		err = json.Unmarshal(content, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("encoder: parse %s: %w", path, err)
	}

	set := make(Set, len(raw))
	for feature, classes := range raw {
		e, err := New(feature, classes)
		if err != nil {
			return nil, fmt.Errorf("encoder: %s: %w", path, err)
		}
		set[feature] = e
	}

	for _, feature := range required {
		if _, err := set.Get(feature); err != nil {
			return nil, fmt.Errorf("encoder: %s: %w", path, err)
		}
	}
	return set, nil
}
