package inference

import (
	"fmt"
	"math"
	"time"

	"github.com/Brownie44l1/rootcause-ml/internal/metrics"
	"github.com/Brownie44l1/rootcause-ml/internal/model"
	"github.com/Brownie44l1/rootcause-ml/internal/preprocess"
)

// DiseaseService classifies leaf images.
type DiseaseService struct {
	registry *model.Registry
	metrics  *metrics.Metrics
}

// NewDiseaseService creates a DiseaseService. m may be nil.
func NewDiseaseService(registry *model.Registry, m *metrics.Metrics) *DiseaseService {
	return &DiseaseService{registry: registry, metrics: m}
}

// Predict preprocesses raw image bytes and classifies them.
func (s *DiseaseService) Predict(image []byte) (model.DiseasePrediction, error) {
	tensor, err := preprocess.Image(image)
	if err != nil {
		return model.DiseasePrediction{}, err
	}
	return s.Classify(tensor)
}

// Classify runs the classifier on a preprocessed tensor and returns the most
// probable label with its probability rounded to 4 decimal places.
func (s *DiseaseService) Classify(tensor preprocess.Tensor) (model.DiseasePrediction, error) {
	start := time.Now()
	probs, err := s.registry.Classifier().Classify(tensor.Shape, tensor.Data)
	s.metrics.ObserveInference("disease", time.Since(start))
	if err != nil {
		return model.DiseasePrediction{}, fmt.Errorf("%w: disease model: %v", ErrInference, err)
	}

	idx, confidence, err := argmax(probs)
	if err != nil {
		return model.DiseasePrediction{}, fmt.Errorf("%w: disease model: %v", ErrInference, err)
	}
	label, ok := s.registry.Label(idx)
	if !ok {
		return model.DiseasePrediction{}, fmt.Errorf("%w: disease model: output %d has no label", ErrInference, idx)
	}

	confidence = round(confidence, 4)
	if confidence < 0 || confidence > 1 {
		return model.DiseasePrediction{}, fmt.Errorf("%w: disease model: confidence %v outside [0, 1]", ErrInference, confidence)
	}
	return model.DiseasePrediction{Disease: label, Confidence: confidence}, nil
}

// argmax returns the index and value of the largest probability. Ties go to
// the lowest index.
func argmax(probs []float32) (int, float64, error) {
	if len(probs) == 0 {
		return 0, 0, fmt.Errorf("empty output")
	}
	best := 0
	for i, p := range probs {
		if math.IsNaN(float64(p)) {
			return 0, 0, fmt.Errorf("output %d is NaN", i)
		}
		if p > probs[best] {
			best = i
		}
	}
	return best, float64(probs[best]), nil
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
