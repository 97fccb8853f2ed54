package classifier

import (
	"context"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Model converts a preprocessed tensor into raw classifier outputs. The ONNX
// implementation is the production one; tests script their own.
type Model interface {
	Predict(ctx context.Context, t *Tensor) ([]float32, error)
	Close() error
}

const (
	onnxInputName  = "input"
	onnxOutputName = "output"
)

var ortInit sync.Once

// ONNXModel runs a pre-trained two-class NSFW classifier through the ONNX
// runtime. Sessions are not safe for concurrent Run calls, so a mutex
// serializes inference; the worker pool above it provides the parallelism
// knob.
type ONNXModel struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
}

// LoadONNXModel initializes the runtime and opens a session for the model
// file. A missing or unreadable model fails fast at startup.
func LoadONNXModel(path string) (*ONNXModel, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}
	var initErr error
	ortInit.Do(func() {
		if lib := os.Getenv("MODERATION_ONNXRUNTIME_LIB"); lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		initErr = ort.InitializeEnvironment()
	})
	if initErr != nil {
		return nil, fmt.Errorf("init onnx runtime: %w", initErr)
	}
	session, err := ort.NewDynamicAdvancedSession(path,
		[]string{onnxInputName}, []string{onnxOutputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("open onnx session: %w", err)
	}
	return &ONNXModel{session: session}, nil
}

// Predict runs one inference pass and returns the raw output values.
func (m *ONNXModel) Predict(ctx context.Context, t *Tensor) ([]float32, error) {
	// Inference is not cancellable once started; honor an already-expired
	// deadline before committing the worker to it.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	input, err := ort.NewTensor(ort.NewShape(1, 3, int64(t.Height), int64(t.Width)), t.Data)
	if err != nil {
		return nil, fmt.Errorf("build input tensor: %w", err)
	}
	defer input.Destroy()

	m.mu.Lock()
	defer m.mu.Unlock()
	outputs := []ort.Value{nil}
	if err := m.session.Run([]ort.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("run inference: %w", err)
	}
	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type %T", outputs[0])
	}
	defer out.Destroy()
	values := make([]float32, len(out.GetData()))
	copy(values, out.GetData())
	return values, nil
}

// Close releases the session.
func (m *ONNXModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Destroy()
}
