package core

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"os"
	"path/filepath"
	"sync"

	"github.com/Adedunmol/face-kiosk/logger"
	"github.com/Kagami/go-face"
)

const ModelDir = "models"

// Model files go-face needs for detection.
var requiredModels = []string{
	"shape_predictor_5_face_landmarks.dat",
	"dlib_face_recognition_resnet_model_v1.dat",
}

var (
	ErrModelNotExist = errors.New("model file does not exist")
	ErrInvalidFormat = errors.New("invalid image format")
	ErrDecodingImage = errors.New("error decoding image")
)

// Detection is one face found in a frame.
type Detection struct {
	Bounds     image.Rectangle
	Confidence float64
}

// Classifier finds faces in JPEG frames with dlib via go-face.
// dlib does not score its detections, so every face is reported at confidence 1.0.
type Classifier struct {
	mu  sync.Mutex
	rec *face.Recognizer
}

// NewClassifier loads the dlib models from modelDir.
func NewClassifier(modelDir string) (*Classifier, error) {
	if modelDir == "" {
		modelDir = filepath.Join(".", ModelDir)
	}
	for _, name := range requiredModels {
		if _, err := os.Stat(filepath.Join(modelDir, name)); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotExist, name)
		}
	}

	rec, err := face.NewRecognizer(modelDir)
	if err != nil {
		return nil, fmt.Errorf("error creating NewRecognizer: %w", err)
	}
	logger.Info("face classifier loaded", logger.LoggerOptions{Key: "model_dir", Data: modelDir})
	return &Classifier{rec: rec}, nil
}

// Detect returns every face in frame. The dlib recognizer is not safe for
// concurrent use, so calls are serialized.
func (c *Classifier) Detect(frame []byte) ([]Detection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rec == nil {
		return nil, errors.New("classifier is closed")
	}

	faces, err := c.rec.Recognize(frame)
	if err != nil {
		return nil, fmt.Errorf("error recognizing frame: %w", err)
	}

	detections := make([]Detection, 0, len(faces))
	for _, f := range faces {
		detections = append(detections, Detection{Bounds: f.Rectangle, Confidence: 1.0})
	}
	return detections, nil
}

func (c *Classifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec != nil {
		c.rec.Close()
		c.rec = nil
	}
}

// ValidateImage checks that data decodes as a JPEG.
func ValidateImage(data []byte) error {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		logger.Debug("image decode failed", logger.LoggerOptions{Key: "error", Data: err})
		return ErrDecodingImage
	}

	if format == "jpeg" {
		return nil
	}

	return ErrInvalidFormat
}
