package model

import (
	"errors"
	"fmt"

	"github.com/Brownie44l1/rootcause-ml/internal/config"
	"github.com/Brownie44l1/rootcause-ml/internal/encoder"
)

// DiseaseClasses lists the classifier's labels. Index i names output unit i;
// the order is the class folder order used in training.
var DiseaseClasses = [...]string{"Healthy", "Leaf_Blight", "Rust"}

// YieldFeatures is the width of the regressor input (crop, location, year).
const YieldFeatures = 3

// Classifier maps an image tensor to class probabilities.
type Classifier interface {
	Classify(shape []int64, data []float32) ([]float32, error)
	OutputWidth() int
	Close() error
}

// Regressor maps a feature row to a scalar.
type Regressor interface {
	Regress(features []float32) (float64, error)
	Close() error
}

// Registry holds the loaded models and encoders. It is built once at startup
// and only read afterwards, so it is safe to share between goroutines.
type Registry struct {
	classifier Classifier
	labels     []string
	regressor  Regressor
	encoders   encoder.Set
}

// NewRegistry assembles a registry from already loaded components and checks
// that they fit together.
func NewRegistry(classifier Classifier, labels []string, regressor Regressor, encoders encoder.Set) (*Registry, error) {
	if classifier == nil {
		return nil, errors.New("registry: classifier is required")
	}
	if regressor == nil {
		return nil, errors.New("registry: regressor is required")
	}
	if len(labels) == 0 {
		return nil, errors.New("registry: classifier labels are required")
	}
	if w := classifier.OutputWidth(); w != len(labels) {
		return nil, fmt.Errorf("registry: classifier has %d outputs but %d labels are defined", w, len(labels))
	}
	for _, feature := range []string{encoder.FeatureCrop, encoder.FeatureDistrict} {
		if _, err := encoders.Get(feature); err != nil {
			return nil, fmt.Errorf("registry: %w", err)
		}
	}

	r := &Registry{
		classifier: classifier,
		labels:     make([]string, len(labels)),
		regressor:  regressor,
		encoders:   make(encoder.Set, len(encoders)),
	}
	copy(r.labels, labels)
	for k, v := range encoders {
		r.encoders[k] = v
	}
	return r, nil
}

// Load initializes the ONNX runtime and loads every artifact named in cfg.
// Any failure is returned and nothing stays open; callers must not serve
// without a registry.
func Load(cfg config.ModelsConfig) (*Registry, error) {
	if err := InitRuntime(cfg.RuntimeLibPath); err != nil {
		return nil, fmt.Errorf("registry: failed to initialize onnx runtime: %w", err)
	}

	encoders, err := encoder.Load(cfg.EncodersPath, encoder.FeatureCrop, encoder.FeatureDistrict)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	classifier, err := NewONNXClassifier(cfg.DiseaseModelPath, cfg.IntraOpThreads)
	if err != nil {
		return nil, fmt.Errorf("registry: disease model: %w", err)
	}

	regressor, err := NewONNXRegressor(cfg.YieldModelPath, YieldFeatures, cfg.IntraOpThreads)
	if err != nil {
		classifier.Close()
		return nil, fmt.Errorf("registry: yield model: %w", err)
	}

	r, err := NewRegistry(classifier, DiseaseClasses[:], regressor, encoders)
	if err != nil {
		classifier.Close()
		regressor.Close()
		return nil, err
	}
	return r, nil
}

// Classifier returns the disease classifier.
func (r *Registry) Classifier() Classifier { return r.classifier }

// Label returns the label of classifier output unit i.
func (r *Registry) Label(i int) (string, bool) {
	if i < 0 || i >= len(r.labels) {
		return "", false
	}
	return r.labels[i], true
}

// Labels returns a copy of the classifier labels.
func (r *Registry) Labels() []string {
	out := make([]string, len(r.labels))
	copy(out, r.labels)
	return out
}

// Regressor returns the yield regressor.
func (r *Registry) Regressor() Regressor { return r.regressor }

// Encoder returns the encoder for feature or an error wrapping encoder.ErrNotFound.
func (r *Registry) Encoder(feature string) (*encoder.Encoder, error) {
	return r.encoders.Get(feature)
}

// Close releases both model sessions.
func (r *Registry) Close() error {
	return errors.Join(r.classifier.Close(), r.regressor.Close())
}
