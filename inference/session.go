package inference

import (
	"fmt"

	"github.com/Tutortoise/deepfake-detector/detections"
	ort "github.com/yalue/onnxruntime_go"
)

// Tensor names of the Hugging Face ONNX exports.
const (
	ImageInputName    = "pixel_values"
	TextInputIDsName  = "input_ids"
	TextAttentionName = "attention_mask"
	LogitsOutputName  = "logits"
)

const (
	DefaultTextLabels  = 2
	DefaultTextPadID   = 1
	DefaultIntraThread = 1
)

// ModelSession is one ONNX Runtime session with its pre-allocated tensors.
// It must not be used by more than one goroutine at a time.
type ModelSession struct {
	Session *ort.AdvancedSession
	Inputs  []ort.ArbitraryTensor
	Outputs []ort.ArbitraryTensor
}

func (m *ModelSession) Run() error {
	if m.Session == nil {
		return fmt.Errorf("session not initialized")
	}
	return m.Session.Run()
}

func (m *ModelSession) Destroy() {
	if m.Session != nil {
		m.Session.Destroy()
	}
	destroyAll(m.Inputs)
	destroyAll(m.Outputs)
}

func destroyAll(tensors []ort.ArbitraryTensor) {
	for _, t := range tensors {
		if t != nil {
			t.Destroy()
		}
	}
}

// NewImageSession creates a session for a [1,3,H,W] -> [1,numLabels] classifier.
func NewImageSession(modelPath string, numLabels, threads int) (*ModelSession, error) {
	inputShape := ort.NewShape(1, 3, detections.InputHeight, detections.InputWidth)
	outputShape := ort.NewShape(1, int64(numLabels))

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	return newSession(modelPath,
		[]string{ImageInputName},
		[]string{LogitsOutputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		threads,
	)
}

// NewTextSession creates a session taking input ids and attention mask of a
// fixed sequence length.
func NewTextSession(modelPath string, numLabels, seqLen, threads int) (*ModelSession, error) {
	inputShape := ort.NewShape(1, int64(seqLen))
	outputShape := ort.NewShape(1, int64(numLabels))

	idsTensor, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		return nil, fmt.Errorf("error creating input ids tensor: %w", err)
	}

	maskTensor, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		idsTensor.Destroy()
		return nil, fmt.Errorf("error creating attention mask tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		idsTensor.Destroy()
		maskTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	return newSession(modelPath,
		[]string{TextInputIDsName, TextAttentionName},
		[]string{LogitsOutputName},
		[]ort.ArbitraryTensor{idsTensor, maskTensor},
		[]ort.ArbitraryTensor{outputTensor},
		threads,
	)
}

func newSession(modelPath string, inputNames, outputNames []string, inputs, outputs []ort.ArbitraryTensor, threads int) (*ModelSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		destroyAll(inputs)
		destroyAll(outputs)
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	if threads < 1 {
		threads = DefaultIntraThread
	}
	options.SetIntraOpNumThreads(threads)
	options.SetInterOpNumThreads(1)

	session, err := ort.NewAdvancedSession(modelPath, inputNames, outputNames, inputs, outputs, options)
	if err != nil {
		destroyAll(inputs)
		destroyAll(outputs)
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &ModelSession{
		Session: session,
		Inputs:  inputs,
		Outputs: outputs,
	}, nil
}
