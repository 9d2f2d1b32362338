package model

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ortEnv manages global ONNX Runtime initialization (process-wide singleton).
var ortEnv struct {
	once sync.Once
	err  error
}

// InitRuntime loads the ONNX Runtime shared library and initializes the
// environment. Only the first call has any effect.
func InitRuntime(libPath string) error {
	ortEnv.once.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// onnxSession wraps a DynamicAdvancedSession with a single input and output.
// Tensors are allocated per call, so Run is safe for concurrent use.
type onnxSession struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	inputDims  ort.Shape
	outputDims ort.Shape
}

func newONNXSession(modelPath string, intraOpThreads int) (*onnxSession, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info from %s: %w", modelPath, err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("onnx: %s: expected 1 input, got %d", modelPath, len(inputs))
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("onnx: %s: model has no outputs", modelPath)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	if intraOpThreads > 0 {
		if err := opts.SetIntraOpNumThreads(intraOpThreads); err != nil {
			return nil, fmt.Errorf("onnx: failed to set intra-op threads: %w", err)
		}
	}
	if err := opts.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("onnx: failed to set inter-op threads: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session for %s: %w", modelPath, err)
	}

	return &onnxSession{
		session:    session,
		inputName:  inputs[0].Name,
		outputName: outputs[0].Name,
		inputDims:  inputs[0].Dimensions,
		outputDims: outputs[0].Dimensions,
	}, nil
}

// run feeds one float32 tensor and returns a copy of the float32 output.
func (s *onnxSession) run(inShape ort.Shape, data []float32, outShape ort.Shape) ([]float32, error) {
	in, err := ort.NewTensor(inShape, data)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create input tensor: %w", err)
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create output tensor: %w", err)
	}
	defer out.Destroy()

	if err := s.session.Run([]ort.Value{in}, []ort.Value{out}); err != nil {
		return nil, fmt.Errorf("onnx: inference failed: %w", err)
	}

	// Copy data out before tensor is destroyed.
	src := out.GetData()
	result := make([]float32, len(src))
	copy(result, src)
	return result, nil
}

func (s *onnxSession) close() error {
	return s.session.Destroy()
}

// ONNXClassifier runs an image classifier exported with NHWC input
// [batch, height, width, channels] and a [batch, classes] probability output.
type ONNXClassifier struct {
	sess  *onnxSession
	width int
}

// NewONNXClassifier loads the classifier at modelPath. The runtime must be
// initialized with InitRuntime first.
func NewONNXClassifier(modelPath string, intraOpThreads int) (*ONNXClassifier, error) {
	sess, err := newONNXSession(modelPath, intraOpThreads)
	if err != nil {
		return nil, err
	}
	if len(sess.inputDims) != 4 {
		sess.close()
		return nil, fmt.Errorf("onnx: classifier %s: expected 4D input, got %v", modelPath, sess.inputDims)
	}
	if len(sess.outputDims) != 2 || sess.outputDims[1] <= 0 {
		sess.close()
		return nil, fmt.Errorf("onnx: classifier %s: expected [batch, classes] output, got %v", modelPath, sess.outputDims)
	}
	return &ONNXClassifier{sess: sess, width: int(sess.outputDims[1])}, nil
}

// OutputWidth returns the number of class probabilities per sample.
func (c *ONNXClassifier) OutputWidth() int { return c.width }

// Classify returns the class probabilities of a single-sample input.
func (c *ONNXClassifier) Classify(shape []int64, data []float32) ([]float32, error) {
	if err := checkShape(shape, data, c.sess.inputDims); err != nil {
		return nil, err
	}
	return c.sess.run(ort.NewShape(shape...), data, ort.NewShape(shape[0], int64(c.width)))
}

// Close releases the session.
func (c *ONNXClassifier) Close() error { return c.sess.close() }

// ONNXRegressor runs a tabular regressor with [batch, features] input and a
// [batch, 1] or [batch] output.
type ONNXRegressor struct {
	sess     *onnxSession
	features int64
}

// NewONNXRegressor loads the regressor at modelPath. The runtime must be
// initialized with InitRuntime first.
func NewONNXRegressor(modelPath string, features int, intraOpThreads int) (*ONNXRegressor, error) {
	sess, err := newONNXSession(modelPath, intraOpThreads)
	if err != nil {
		return nil, err
	}
	dims := sess.inputDims
	if len(dims) != 2 || (dims[1] > 0 && dims[1] != int64(features)) {
		sess.close()
		return nil, fmt.Errorf("onnx: regressor %s: expected [batch, %d] input, got %v", modelPath, features, dims)
	}
	if n := len(sess.outputDims); n != 1 && n != 2 {
		sess.close()
		return nil, fmt.Errorf("onnx: regressor %s: expected 1D or 2D output, got %v", modelPath, sess.outputDims)
	}
	return &ONNXRegressor{sess: sess, features: int64(features)}, nil
}

// Regress predicts a scalar for one feature row.
func (r *ONNXRegressor) Regress(features []float32) (float64, error) {
	if int64(len(features)) != r.features {
		return 0, fmt.Errorf("onnx: regressor expects %d features, got %d", r.features, len(features))
	}
	outShape := ort.NewShape(1)
	if len(r.sess.outputDims) == 2 {
		outShape = ort.NewShape(1, 1)
	}
	out, err := r.sess.run(ort.NewShape(1, r.features), features, outShape)
	if err != nil {
		return 0, err
	}
	if len(out) == 0 {
		return 0, fmt.Errorf("onnx: regressor produced no output")
	}
	return float64(out[0]), nil
}

// Close releases the session.
func (r *ONNXRegressor) Close() error { return r.sess.close() }

// checkShape verifies that data fills shape and that shape agrees with the
// model's declared dimensions, where non-positive dimensions are dynamic.
func checkShape(shape []int64, data []float32, declared ort.Shape) error {
	if len(shape) != len(declared) {
		return fmt.Errorf("onnx: input rank %d does not match model rank %d", len(shape), len(declared))
	}
	size := int64(1)
	for i, d := range shape {
		if declared[i] > 0 && declared[i] != d {
			return fmt.Errorf("onnx: input shape %v does not match model shape %v", shape, declared)
		}
		size *= d
	}
	if size != int64(len(data)) {
		return fmt.Errorf("onnx: input shape %v needs %d values, got %d", shape, size, len(data))
	}
	return nil
}

// DestroyRuntime tears down the ONNX Runtime environment once every session
// is closed.
func DestroyRuntime() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}
