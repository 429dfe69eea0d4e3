// Package inference runs ONNX object detection models to produce
// predictions for evaluation.
package inference

import (
	"image"
	"os"
	"sync"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/go-eval/records"
)

// Config configures a detector session.
type Config struct {
	// ModelPath is the ONNX model file.
	ModelPath string
	// LibraryPath overrides the ONNX Runtime shared library location.
	LibraryPath string
	// InputWidth and InputHeight are the model's input resolution.
	InputWidth  int
	InputHeight int
	// InputName and OutputName are the model's tensor names.
	InputName  string
	OutputName string
	// ConfidenceThreshold drops detections below this score.
	ConfidenceThreshold float32
}

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

func initRuntime(libraryPath string) error {
	ortInitOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// Detector wraps one ONNX detection model session. The model is expected to
// emit rows of [x1, y1, x2, y2, score, class], as the exported detection
// heads here do.
type Detector struct {
	cfg     Config
	session *ort.DynamicAdvancedSession
	mu      sync.Mutex
}

// NewDetector loads the model and prepares a session.
func NewDetector(cfg Config) (*Detector, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, errors.Wrapf(err, "model file not found: %s", cfg.ModelPath)
	}
	if err := initRuntime(cfg.LibraryPath); err != nil {
		return nil, errors.Wrap(err, "failed to initialize onnx runtime")
	}
	if cfg.InputName == "" {
		cfg.InputName = "images"
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "output"
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session options")
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		options,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load model %s", cfg.ModelPath)
	}
	return &Detector{cfg: cfg, session: session}, nil
}

// Close releases the session.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return nil
	}
	err := d.session.Destroy()
	d.session = nil
	return err
}

// Detect runs inference on one image and returns predictions in the
// original image's coordinate space.
func (d *Detector) Detect(img image.Image) (records.Instances, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return records.Instances{}, errors.New("detector is closed")
	}

	data, scaleX, scaleY := d.preprocess(img)
	input, err := ort.NewTensor(ort.NewShape(1, 3, int64(d.cfg.InputHeight), int64(d.cfg.InputWidth)), data)
	if err != nil {
		return records.Instances{}, errors.Wrap(err, "failed to create input tensor")
	}
	defer input.Destroy()

	outputs := []ort.ArbitraryTensor{nil}
	if err := d.session.Run([]ort.ArbitraryTensor{input}, outputs); err != nil {
		return records.Instances{}, errors.Wrap(err, "inference failed")
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return records.Instances{}, errors.New("model output is not a float32 tensor")
	}
	return d.postprocess(out.GetData(), scaleX, scaleY), nil
}

// preprocess resizes to the model resolution and packs NCHW float32 in
// [0, 1]. Returns the scale factors back to the source image.
func (d *Detector) preprocess(img image.Image) ([]float32, float32, float32) {
	w, h := d.cfg.InputWidth, d.cfg.InputHeight
	bounds := img.Bounds()
	scaleX := float32(bounds.Dx()) / float32(w)
	scaleY := float32(bounds.Dy()) / float32(h)

	resized := resize.Resize(uint(w), uint(h), img, resize.Bilinear)
	data := make([]float32, 3*w*h)
	plane := w * h
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			idx := y*w + x
			data[idx] = float32(r>>8) / 255.0
			data[plane+idx] = float32(g>>8) / 255.0
			data[2*plane+idx] = float32(b>>8) / 255.0
		}
	}
	return data, scaleX, scaleY
}

// postprocess parses [x1, y1, x2, y2, score, class] rows, filters by
// confidence, and maps boxes back to source coordinates.
func (d *Detector) postprocess(out []float32, scaleX, scaleY float32) records.Instances {
	var in records.Instances
	for i := 0; i+5 < len(out); i += 6 {
		score := out[i+4]
		if score < d.cfg.ConfidenceThreshold {
			continue
		}
		in.Boxes = append(in.Boxes, [4]float32{
			out[i] * scaleX,
			out[i+1] * scaleY,
			out[i+2] * scaleX,
			out[i+3] * scaleY,
		})
		in.Scores = append(in.Scores, score)
		in.Labels = append(in.Labels, int(out[i+5]))
	}
	return in
}
