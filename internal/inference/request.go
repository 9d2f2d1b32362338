package inference

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/Brownie44l1/rootcause-ml/internal/encoder"
	"github.com/Brownie44l1/rootcause-ml/internal/model"
)

// Request field names of a yield prediction.
const (
	FieldCrop     = encoder.FeatureCrop
	FieldDistrict = encoder.FeatureDistrict
	FieldYear     = "Year"
)

// YieldRequest is the undecoded yield request body. Each field is kept raw
// so that Validate can name the offending field precisely.
type YieldRequest struct {
	Crop     json.RawMessage
	District json.RawMessage
	Year     json.RawMessage
}

// UnmarshalJSON picks the fields by exact key. Keys differing only in case,
// such as "crop", are ignored like any other unknown key.
func (r *YieldRequest) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*r = YieldRequest{
		Crop:     fields[FieldCrop],
		District: fields[FieldDistrict],
		Year:     fields[FieldYear],
	}
	return nil
}

// Validate checks the fields in order Crop, District, Year and returns the
// typed input or a *ValidationError for the first bad field. JSON null
// counts as missing. Year accepts an integral number or a string holding one.
func (r YieldRequest) Validate() (model.YieldInput, error) {
	crop, err := textField(FieldCrop, r.Crop)
	if err != nil {
		return model.YieldInput{}, err
	}
	district, err := textField(FieldDistrict, r.District)
	if err != nil {
		return model.YieldInput{}, err
	}
	year, err := yearField(r.Year)
	if err != nil {
		return model.YieldInput{}, err
	}
	return model.YieldInput{Crop: crop, District: district, Year: year}, nil
}

func isMissing(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func textField(field string, raw json.RawMessage) (string, error) {
	if isMissing(raw) {
		return "", missingField(field)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", invalidField(field, "expected a string")
	}
	return s, nil
}

func yearField(raw json.RawMessage) (int, error) {
	if isMissing(raw) {
		return 0, missingField(FieldYear)
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil || !yearInRange(float64(n)) {
			return 0, invalidField(FieldYear, "expected an integer")
		}
		return int(n), nil
	}

	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return 0, invalidField(FieldYear, "expected an integer")
	}
	if n, err := num.Int64(); err == nil && yearInRange(float64(n)) {
		return int(n), nil
	}
	f, err := num.Float64()
	if err != nil || f != math.Trunc(f) || !yearInRange(f) {
		return 0, invalidField(FieldYear, "expected an integer")
	}
	return int(f), nil
}

// yearInRange bounds Year to int32.
func yearInRange(v float64) bool {
	return v >= math.MinInt32 && v <= math.MaxInt32
}
