// Package modeltest provides in-memory models for tests that need a registry
// without ONNX artifacts.
package modeltest

import (
	"sync"
	"testing"

	"github.com/Brownie44l1/rootcause-ml/internal/encoder"
	"github.com/Brownie44l1/rootcause-ml/internal/model"
)

// Classifier is a fake classifier. When Fn is nil it returns Probs.
type Classifier struct {
	Width int
	Probs []float32
	Err   error
	Fn    func(shape []int64, data []float32) ([]float32, error)
}

func (c *Classifier) Classify(shape []int64, data []float32) ([]float32, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	if c.Fn != nil {
		return c.Fn(shape, data)
	}
	out := make([]float32, len(c.Probs))
	copy(out, c.Probs)
	return out, nil
}

func (c *Classifier) OutputWidth() int { return c.Width }

func (c *Classifier) Close() error { return nil }

// MeanClassifier spreads probability over three classes according to the mean
// of the input, so distinct images yield distinct but repeatable outputs.
func MeanClassifier() *Classifier {
	return &Classifier{
		Width: 3,
		Fn: func(_ []int64, data []float32) ([]float32, error) {
			var sum float64
			for _, v := range data {
				sum += float64(v)
			}
			mean := float32(sum / float64(max(len(data), 1)))
			return []float32{mean / 2, (1 - mean) / 2, 0.5}, nil
		},
	}
}

// Regressor is a fake regressor computing Value + crop*100 + location*10 + year/1000.
// It records every feature row it receives.
type Regressor struct {
	Value float64
	Err   error

	mu    sync.Mutex
	calls [][]float32
}

func (r *Regressor) Regress(features []float32) (float64, error) {
	r.mu.Lock()
	row := make([]float32, len(features))
	copy(row, features)
	r.calls = append(r.calls, row)
	r.mu.Unlock()

	if r.Err != nil {
		return 0, r.Err
	}
	return r.Value + float64(features[0])*100 + float64(features[1])*10 + float64(features[2])/1000, nil
}

func (r *Regressor) Close() error { return nil }

// Calls returns the feature rows seen so far.
func (r *Regressor) Calls() [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]float32, len(r.calls))
	copy(out, r.calls)
	return out
}

// Crops and Districts are the vocabularies of Encoders, in code order.
var (
	Crops     = []string{"Maize", "Potatoes", "Rice, paddy", "Wheat"}
	Districts = []string{"Brazil", "India", "Kenya"}
)

// Encoders returns encoders over Crops and Districts.
func Encoders(t testing.TB) encoder.Set {
	t.Helper()
	crop, err := encoder.New(encoder.FeatureCrop, Crops)
	if err != nil {
		t.Fatal(err)
	}
	district, err := encoder.New(encoder.FeatureDistrict, Districts)
	if err != nil {
		t.Fatal(err)
	}
	return encoder.Set{encoder.FeatureCrop: crop, encoder.FeatureDistrict: district}
}

// Registry builds a registry around c and r with the default labels and
// Encoders.
func Registry(t testing.TB, c model.Classifier, r model.Regressor) *model.Registry {
	t.Helper()
	reg, err := model.NewRegistry(c, model.DiseaseClasses[:], r, Encoders(t))
	if err != nil {
		t.Fatal(err)
	}
	return reg
}
