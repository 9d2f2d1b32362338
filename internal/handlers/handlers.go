package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Brownie44l1/rootcause-ml/internal/inference"
	"github.com/Brownie44l1/rootcause-ml/internal/metrics"
	"github.com/Brownie44l1/rootcause-ml/internal/model"
)

// Upload form fields checked in order.
var uploadFields = []string{"file", "image"}

// maxYieldBodyBytes bounds the JSON body of a yield request.
const maxYieldBodyBytes = 64 << 10

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// Handler serves the prediction and status routes.
type Handler struct {
	disease        *inference.DiseaseService
	yield          *inference.YieldService
	metrics        *metrics.Metrics
	maxUploadBytes int64
}

// NewHandler creates a Handler. Disease uploads larger than maxUploadBytes
// are rejected with 413.
func NewHandler(disease *inference.DiseaseService, yield *inference.YieldService, m *metrics.Metrics, maxUploadBytes int64) *Handler {
	return &Handler{
		disease:        disease,
		yield:          yield,
		metrics:        m,
		maxUploadBytes: maxUploadBytes,
	}
}

// Root reports the service identity and its capabilities.
func (h *Handler) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, model.ServiceInfo{
		Message:  "RootCause ML Service Running",
		Services: []string{"Disease Detection", "Yield Prediction"},
	})
}

// Health reports liveness.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

// PredictDisease accepts a multipart upload (field "file" or "image") or a
// raw image body.
func (h *Handler) PredictDisease(c echo.Context) error {
	req := c.Request()
	req.Body = http.MaxBytesReader(c.Response(), req.Body, h.maxUploadBytes)

	data, err := h.readImage(c)
	if err != nil {
		return h.fail(c, "disease", err)
	}

	result, err := h.disease.Predict(data)
	if err != nil {
		return h.fail(c, "disease", err)
	}

	h.metrics.ObservePrediction("disease", metrics.OutcomeSuccess)
	return c.JSON(http.StatusOK, result)
}

// PredictYield accepts a JSON body with the exact keys Crop, District and
// Year.
func (h *Handler) PredictYield(c echo.Context) error {
	req := c.Request()
	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxYieldBodyBytes)

	var body inference.YieldRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		var tooLong *http.MaxBytesError
		if errors.As(err, &tooLong) {
			return h.fail(c, "yield", err)
		}
		return h.fail(c, "yield", badRequest("Invalid JSON body", err))
	}

	result, err := h.yield.Predict(body)
	if err != nil {
		return h.fail(c, "yield", err)
	}

	h.metrics.ObservePrediction("yield", metrics.OutcomeSuccess)
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) readImage(c echo.Context) ([]byte, error) {
	req := c.Request()
	ctype := strings.ToLower(req.Header.Get(echo.HeaderContentType))

	if !strings.HasPrefix(ctype, echo.MIMEMultipartForm) {
		data, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, badRequest("Failed to read request body", err)
		}
		return data, nil
	}

	for _, field := range uploadFields {
		header, err := c.FormFile(field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			return nil, badRequest("Failed to parse form", err)
		}
		return readUpload(header)
	}
	return nil, badRequest("No image file provided. Use 'file' as the form field name", nil)
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, badRequest("Failed to open uploaded file", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, badRequest("Failed to read uploaded file", err)
	}
	return data, nil
}

// fail translates err into an HTTP error and records the outcome.
func (h *Handler) fail(c echo.Context, endpoint string, err error) error {
	he := toHTTPError(err)
	if he.Code >= http.StatusInternalServerError {
		h.metrics.ObservePrediction(endpoint, metrics.OutcomeServerError)
		slog.Error("prediction failed", "endpoint", endpoint, "error", err)
	} else {
		h.metrics.ObservePrediction(endpoint, metrics.OutcomeClientError)
		slog.Debug("prediction rejected", "endpoint", endpoint, "error", err)
	}
	return he
}

func badRequest(detail string, cause error) *echo.HTTPError {
	return newHTTPError(http.StatusBadRequest, detail, cause)
}

func newHTTPError(code int, detail string, cause error) *echo.HTTPError {
	he := echo.NewHTTPError(code, ErrorResponse{Detail: detail})
	if cause != nil {
		he = he.SetInternal(cause)
	}
	return he
}

func toHTTPError(err error) *echo.HTTPError {
	var (
		he      *echo.HTTPError
		verr    *inference.ValidationError
		tooLong *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooLong):
		return newHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("Payload exceeds %d bytes", tooLong.Limit), err)
	case errors.As(err, &he):
		return he
	case errors.As(err, &verr):
		return newHTTPError(http.StatusBadRequest, verr.Error(), err)
	case errors.Is(err, inference.ErrDecode):
		return newHTTPError(http.StatusBadRequest, "Invalid image format: "+err.Error(), err)
	case errors.Is(err, inference.ErrEncoderLookup):
		return newHTTPError(http.StatusInternalServerError, "Missing encoder for: "+err.Error(), err)
	case errors.Is(err, inference.ErrInference):
		return newHTTPError(http.StatusInternalServerError, "Prediction failed: "+err.Error(), err)
	default:
		return newHTTPError(http.StatusInternalServerError, "Prediction failed", err)
	}
}
