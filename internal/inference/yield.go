package inference

import (
	"fmt"
	"math"
	"time"

	"github.com/Brownie44l1/rootcause-ml/internal/encoder"
	"github.com/Brownie44l1/rootcause-ml/internal/metrics"
	"github.com/Brownie44l1/rootcause-ml/internal/model"
)

// YieldService predicts crop yield from a crop, a location and a year.
type YieldService struct {
	registry *model.Registry
	resolver *encoder.Resolver
	metrics  *metrics.Metrics
}

// NewYieldService creates a YieldService. m may be nil.
func NewYieldService(registry *model.Registry, resolver *encoder.Resolver, m *metrics.Metrics) *YieldService {
	return &YieldService{registry: registry, resolver: resolver, metrics: m}
}

// Predict validates req and runs the regressor on it.
func (s *YieldService) Predict(req YieldRequest) (model.YieldPrediction, error) {
	in, err := req.Validate()
	if err != nil {
		return model.YieldPrediction{}, err
	}
	return s.PredictInput(in)
}

// PredictInput encodes a validated input and runs the regressor. Unknown
// crop or location values are substituted, not rejected; every substitution
// is listed in the result.
func (s *YieldService) PredictInput(in model.YieldInput) (model.YieldPrediction, error) {
	var subs []encoder.Substitution

	cropCode, err := s.resolve(encoder.FeatureCrop, in.Crop, &subs)
	if err != nil {
		return model.YieldPrediction{}, err
	}
	locationCode, err := s.resolve(encoder.FeatureDistrict, in.District, &subs)
	if err != nil {
		return model.YieldPrediction{}, err
	}

	features := model.FeatureVector{CropCode: cropCode, LocationCode: locationCode, Year: in.Year}

	start := time.Now()
	v, err := s.registry.Regressor().Regress(features.Values())
	s.metrics.ObserveInference("yield", time.Since(start))
	if err != nil {
		return model.YieldPrediction{}, fmt.Errorf("%w: yield model: %v", ErrInference, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return model.YieldPrediction{}, fmt.Errorf("%w: yield model: non-finite prediction %v", ErrInference, v)
	}

	return model.YieldPrediction{
		PredictedYield: round(v, 2),
		Unit:           model.YieldUnit,
		Input:          in,
		Substitutions:  subs,
	}, nil
}

func (s *YieldService) resolve(feature, value string, subs *[]encoder.Substitution) (int, error) {
	enc, err := s.registry.Encoder(feature)
	if err != nil {
		return 0, err
	}
	res, err := s.resolver.Resolve(enc, value)
	if err != nil {
		return 0, err
	}
	if res.Substitution != nil {
		*subs = append(*subs, *res.Substitution)
	}
	return res.Code, nil
}
