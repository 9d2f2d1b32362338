package model

import "github.com/Brownie44l1/rootcause-ml/internal/encoder"

// YieldUnit is the unit of every yield prediction.
const YieldUnit = "hg/ha (FAO standard)"

// DiseasePrediction is the result of classifying one leaf image.
type DiseasePrediction struct {
	Disease    string  `json:"disease"`
	Confidence float64 `json:"confidence"`
}

// YieldInput is a validated yield request. Field names match the training
// dataset columns.
type YieldInput struct {
	Crop     string `json:"Crop"`
	District string `json:"District"`
	Year     int    `json:"Year"`
}

// FeatureVector is the encoded regressor input. The order of Values is the
// column order used in training and must not change.
type FeatureVector struct {
	CropCode     int
	LocationCode int
	Year         int
}

// Values returns the vector as the regressor's float input row.
func (f FeatureVector) Values() []float32 {
	return []float32{float32(f.CropCode), float32(f.LocationCode), float32(f.Year)}
}

// YieldPrediction is the result of a yield regression.
type YieldPrediction struct {
	PredictedYield float64                `json:"predicted_yield"`
	Unit           string                 `json:"unit"`
	Input          YieldInput             `json:"input"`
	Substitutions  []encoder.Substitution `json:"substitutions,omitempty"`
}

// ServiceInfo describes the running service.
type ServiceInfo struct {
	Message  string   `json:"message"`
	Services []string `json:"services"`
}
