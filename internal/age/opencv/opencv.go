// Package opencv estimates age with OpenCV DNN models: a YuNet face detector
// locates the largest face and an Adience-style age classifier scores the
// cropped face.
//
// Building this package requires OpenCV 4 with the dnn and objdetect
// modules.
package opencv

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/MrWong99/kioskvoice/internal/age"
)

var (
	_ age.Estimator = (*Estimator)(nil)
	_ age.Camera    = (*Camera)(nil)
)

// Config selects the model files.
type Config struct {
	// FaceModel is the YuNet ONNX file.
	FaceModel string

	// AgeModel and AgeConfig are the age classifier weights and, for Caffe
	// models, the prototxt. AgeConfig is empty for ONNX.
	AgeModel  string
	AgeConfig string

	// FaceScore is the minimum detector confidence. Default 0.7.
	FaceScore float64
}

// Adience network input.
var (
	ageInputSize = image.Pt(227, 227)
	ageMean      = gocv.NewScalar(78.4263377603, 87.7689143744, 114.895847746, 0)
)

// Estimator is safe for concurrent use; inference is serialized.
type Estimator struct {
	mu     sync.Mutex
	faces  gocv.FaceDetectorYN
	ageNet gocv.Net
}

// New loads the models in cfg.
func New(cfg Config) (*Estimator, error) {
	for _, p := range []string{cfg.FaceModel, cfg.AgeModel} {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("opencv age: model file: %w", err)
		}
	}
	if cfg.FaceScore <= 0 {
		cfg.FaceScore = 0.7
	}

	net := gocv.ReadNet(cfg.AgeModel, cfg.AgeConfig)
	if net.Empty() {
		return nil, fmt.Errorf("opencv age: failed to load age model from %s", cfg.AgeModel)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	faces := gocv.NewFaceDetectorYNWithParams(
		cfg.FaceModel,
		"",
		image.Pt(320, 320),
		float32(cfg.FaceScore),
		0.3,
		50,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)
	return &Estimator{faces: faces, ageNet: net}, nil
}

// EstimateAge implements [age.Estimator]. It returns [age.ErrNoFace] when the
// image holds no face.
func (e *Estimator) EstimateAge(ctx context.Context, data []byte) (age.Estimate, error) {
	if err := ctx.Err(); err != nil {
		return age.Estimate{}, err
	}
	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return age.Estimate{}, fmt.Errorf("opencv age: decode image: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return age.Estimate{}, errors.New("opencv age: empty image")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	box, ok := e.largestFace(img)
	if !ok {
		return age.Estimate{}, age.ErrNoFace
	}
	face := img.Region(box)
	defer face.Close()

	blob := gocv.BlobFromImage(face, 1.0, ageInputSize, ageMean, false, false)
	defer blob.Close()
	e.ageNet.SetInput(blob, "")
	out := e.ageNet.Forward("")
	defer out.Close()

	scores, err := out.DataPtrFloat32()
	if err != nil {
		return age.Estimate{}, fmt.Errorf("opencv age: read output: %w", err)
	}
	years, conf, err := age.FromScores(age.AdienceBuckets, scores)
	if err != nil {
		return age.Estimate{}, fmt.Errorf("opencv age: %w", err)
	}
	return age.Estimate{Age: years, Detected: true, Confidence: conf}, nil
}

// largestFace returns the biggest detected face clipped to the image.
func (e *Estimator) largestFace(img gocv.Mat) (image.Rectangle, bool) {
	e.faces.SetInputSize(image.Pt(img.Cols(), img.Rows()))
	faces := gocv.NewMat()
	defer faces.Close()
	e.faces.Detect(img, &faces)

	bounds := image.Rect(0, 0, img.Cols(), img.Rows())
	var best image.Rectangle
	for r := 0; r < faces.Rows(); r++ {
		// Columns 0-3 are x, y, w, h in pixels.
		x := int(faces.GetFloatAt(r, 0))
		y := int(faces.GetFloatAt(r, 1))
		w := int(faces.GetFloatAt(r, 2))
		h := int(faces.GetFloatAt(r, 3))
		box := image.Rect(x, y, x+w, y+h).Intersect(bounds)
		if area(box) > area(best) {
			best = box
		}
	}
	return best, !best.Empty()
}

func area(r image.Rectangle) int { return r.Dx() * r.Dy() }

// Close releases the models.
func (e *Estimator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.faces.Close()
	return e.ageNet.Close()
}

// Camera grabs JPEG frames from a local video device.
type Camera struct {
	mu     sync.Mutex
	device int
}

// NewCamera returns a camera for the given device index. The device is
// opened per snapshot so the kiosk does not hold the webcam between
// customers.
func NewCamera(device int) *Camera { return &Camera{device: device} }

// Snapshot implements [age.Camera].
func (c *Camera) Snapshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	vc, err := gocv.OpenVideoCapture(c.device)
	if err != nil {
		return nil, fmt.Errorf("opencv camera: open device %d: %w", c.device, err)
	}
	defer vc.Close()

	frame := gocv.NewMat()
	defer frame.Close()
	if ok := vc.Read(&frame); !ok || frame.Empty() {
		return nil, fmt.Errorf("opencv camera: device %d returned no frame", c.device)
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)
	if err != nil {
		return nil, fmt.Errorf("opencv camera: encode: %w", err)
	}
	defer buf.Close()
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
