package inference

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	tflite "github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates/xnnpack"

	"github.com/deeplyinc/homeaudio-go/internal/conf"
	"github.com/deeplyinc/homeaudio-go/internal/cpuspec"
	"github.com/deeplyinc/homeaudio-go/internal/errors"
	"github.com/deeplyinc/homeaudio-go/internal/logger"
)

// TFLite runs the model with the TensorFlow Lite C API. Calls to Predict
// are serialized; the interpreter is not safe for concurrent use.
type TFLite struct {
	mu          sync.Mutex
	interpreter *tflite.Interpreter
	model       *tflite.Model
	modelPath   string
	tensorShape []int
	inputSize   int
}

// LoadTFLite is the Loader for TensorFlow Lite models.
func LoadTFLite(cfg conf.DetectorConfig) (Adapter, error) {
	t, err := NewTFLite(cfg)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// NewTFLite loads the model at cfg.ModelPath and allocates its tensors.
func NewTFLite(cfg conf.DetectorConfig) (*TFLite, error) {
	start := time.Now()

	modelData, err := os.ReadFile(cfg.ModelPath)
	if err != nil {
		return nil, errors.New(err).
			Component("inference").
			Category(errors.CategoryModelLoad).
			ModelContext(cfg.ModelPath, cfg.TensorShape).
			Timing("model-load", time.Since(start)).
			Build()
	}

	model := tflite.NewModel(modelData)
	if model == nil {
		return nil, errors.New(fmt.Errorf("cannot load TensorFlow Lite model")).
			Component("inference").
			Category(errors.CategoryModelInit).
			ModelContext(cfg.ModelPath, cfg.TensorShape).
			Context("model_size_kb", len(modelData)/1024).
			Timing("model-init", time.Since(start)).
			Build()
	}

	threads := cpuspec.ResolveThreads(cfg.Threads)
	log := GetLogger()

	options := tflite.NewInterpreterOptions()
	if cfg.UseXNNPACK {
		delegate := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(1, threads-1))}) //nolint:gosec // G115: bounded by CPU count
		if delegate == nil {
			log.Warn("Failed to create XNNPACK delegate, falling back to default CPU")
			options.SetNumThread(threads)
		} else {
			options.AddDelegate(delegate)
			options.SetNumThread(1)
		}
	} else {
		options.SetNumThread(threads)
	}
	options.SetErrorReporter(func(msg string, _ any) {
		GetLogger().Error("TFLite error", logger.String("message", msg))
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		model.Delete()
		return nil, errors.Newf("cannot create interpreter").
			Component("inference").
			Category(errors.CategoryModelInit).
			ModelContext(cfg.ModelPath, cfg.TensorShape).
			Build()
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		model.Delete()
		return nil, errors.Newf("tensor allocation failed: %v", status).
			Component("inference").
			Category(errors.CategoryModelInit).
			ModelContext(cfg.ModelPath, cfg.TensorShape).
			Build()
	}

	input := interpreter.GetInputTensor(0)
	if input == nil {
		interpreter.Delete()
		model.Delete()
		return nil, errors.Newf("cannot get input tensor").
			Component("inference").
			Category(errors.CategoryModelInit).
			Build()
	}
	inputSize := len(input.Float32s())
	if inputSize != cfg.TensorSize() {
		interpreter.Delete()
		model.Delete()
		return nil, errors.Newf("model input tensor has %d values, configured shape %v needs %d",
			inputSize, cfg.TensorShape, cfg.TensorSize()).
			Component("inference").
			Category(errors.CategoryValidation).
			ModelContext(cfg.ModelPath, cfg.TensorShape).
			Build()
	}

	// TFLite holds its own copy of the model data.
	runtime.GC()

	log.Info("Audio event model initialized",
		logger.String("model", cfg.ModelPath),
		logger.Int("threads", threads),
		logger.Int("total_cpus", runtime.NumCPU()),
		logger.Bool("xnnpack", cfg.UseXNNPACK),
		logger.Duration("load_time", time.Since(start)))

	return &TFLite{
		interpreter: interpreter,
		model:       model,
		modelPath:   cfg.ModelPath,
		tensorShape: cfg.TensorShapeCopy(),
		inputSize:   inputSize,
	}, nil
}

// Predict copies input into the model tensor, invokes the interpreter and
// returns a copy of the full output tensor.
func (t *TFLite) Predict(input []float32) ([]float32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.interpreter == nil {
		return nil, errors.Newf("interpreter closed").
			Component("inference").
			Category(errors.CategoryState).
			Build()
	}
	if len(input) != t.inputSize {
		return nil, errors.Newf("input has %d values, model expects %d", len(input), t.inputSize).
			Component("inference").
			Category(errors.CategoryValidation).
			ModelContext(t.modelPath, t.tensorShape).
			Build()
	}

	inputTensor := t.interpreter.GetInputTensor(0)
	if inputTensor == nil {
		return nil, fmt.Errorf("cannot get input tensor")
	}
	copy(inputTensor.Float32s(), input)

	if status := t.interpreter.Invoke(); status != tflite.OK {
		return nil, errors.Newf("tensor invoke failed: %v", status).
			Component("inference").
			Category(errors.CategoryInference).
			ModelContext(t.modelPath, t.tensorShape).
			Build()
	}

	outputTensor := t.interpreter.GetOutputTensor(0)
	if outputTensor == nil {
		return nil, fmt.Errorf("cannot get output tensor")
	}
	raw := outputTensor.Float32s()
	out := make([]float32, len(raw))
	copy(out, raw)
	return out, nil
}

// Close releases the interpreter. It is safe to call more than once.
func (t *TFLite) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.interpreter != nil {
		t.interpreter.Delete()
		t.interpreter = nil
	}
	if t.model != nil {
		t.model.Delete()
		t.model = nil
	}
	return nil
}
