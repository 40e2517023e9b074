// Package onnxsession owns a single compiled ONNX inference graph and
// exposes a typed named-tensor Run call. It is explicitly single-writer:
// Run is not re-entrant and callers must serialize concurrent calls
// themselves (the local MT engine does this with its own mutex).
package onnxsession

import (
	"fmt"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Device selects the compute device a Session should prefer.
type Device int

const (
	DeviceCPU Device = iota
	DeviceGPU
)

// Config configures a Session.
type Config struct {
	ModelPath string
	// SharedLibraryPath points at onnxruntime's shared library; empty
	// uses the system default search path.
	SharedLibraryPath string
	// NumThreads sets intra-op parallelism; 0 selects min(4, NumCPU).
	NumThreads int
	Device     Device
	InputNames  []string
	OutputNames []string
}

var (
	initOnce sync.Once
	initErr  error
)

// Session wraps one loaded ONNX graph. Run must be serialized by the
// caller; Session itself holds no lock because ownership (and thus
// serialization) is the caller's contract, per the spec's explicit
// single-writer requirement.
type Session struct {
	inner      *ort.DynamicAdvancedSession
	numOutputs int
}

// New loads the model at cfg.ModelPath and configures the execution
// provider described by cfg.Device.
func New(cfg Config) (*Session, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("onnxsession: empty model path")
	}

	if cfg.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
	}

	initOnce.Do(func() {
		initErr = ort.InitializeEnvironment()
	})
	if initErr != nil {
		return nil, fmt.Errorf("onnxsession: init runtime: %w", initErr)
	}

	numThreads := cfg.NumThreads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
		if numThreads > 4 {
			numThreads = 4
		}
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnxsession: session options: %w", err)
	}
	defer opts.Destroy()

	if err := opts.SetIntraOpNumThreads(numThreads); err != nil {
		return nil, fmt.Errorf("onnxsession: set intra threads: %w", err)
	}
	if err := opts.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("onnxsession: set inter threads: %w", err)
	}
	if cfg.Device == DeviceGPU {
		if err := enableGPU(opts); err != nil {
			return nil, fmt.Errorf("onnxsession: enable gpu: %w", err)
		}
	}

	inner, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, cfg.InputNames, cfg.OutputNames, opts)
	if err != nil {
		return nil, fmt.Errorf("onnxsession: create session: %w", err)
	}

	return &Session{inner: inner, numOutputs: len(cfg.OutputNames)}, nil
}

// Close releases the underlying ONNX session.
func (s *Session) Close() {
	if s.inner != nil {
		s.inner.Destroy()
	}
}

// Tensor is a named input or output tensor, shaped [dims...] holding
// flat int64 or float32 data.
type Tensor struct {
	Shape []int64
	Int64 []int64
	Float32 []float32
}

func (t Tensor) toORT() (ort.Value, error) {
	shape := ort.NewShape(t.Shape...)
	if t.Int64 != nil {
		return ort.NewTensor(shape, t.Int64)
	}
	return ort.NewTensor(shape, t.Float32)
}

// Run executes the graph with the given named inputs (in the order
// configured at New via InputNames) and returns named outputs (in the
// order configured via OutputNames). Not safe for concurrent calls —
// see the package doc comment.
func (s *Session) Run(inputs []Tensor) ([]Tensor, error) {
	ortInputs := make([]ort.Value, len(inputs))
	for i, in := range inputs {
		v, err := in.toORT()
		if err != nil {
			return nil, fmt.Errorf("onnxsession: build input %d: %w", i, err)
		}
		ortInputs[i] = v
	}
	defer destroyAll(ortInputs)

	// DynamicAdvancedSession.Run fills pre-sized output slots; the
	// count matches the number of output names configured at New.
	outSlots := make([]ort.Value, s.numOutputs)
	if err := s.inner.Run(ortInputs, outSlots); err != nil {
		return nil, fmt.Errorf("onnxsession: run: %w", err)
	}
	defer destroyAll(outSlots)

	results := make([]Tensor, 0, len(outSlots))
	for _, o := range outSlots {
		if o == nil {
			continue
		}
		t, ok := o.(*ort.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("onnxsession: unexpected output tensor type")
		}
		results = append(results, Tensor{Shape: t.GetShape(), Float32: t.GetData()})
	}
	return results, nil
}

func destroyAll(vs []ort.Value) {
	for _, v := range vs {
		if v != nil {
			v.Destroy()
		}
	}
}
