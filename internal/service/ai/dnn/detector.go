// Package dnn runs an SSD MobileNet COCO network through OpenCV's DNN module.
package dnn

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"ignitiongate/internal/logger"
	"ignitiongate/internal/model"
	"ignitiongate/internal/service/ai"
	"ignitiongate/internal/service/camera/opencv"

	"gocv.io/x/gocv"
)

// personClassID is "person" in the COCO label map used by the SSD model.
const personClassID = 1

// Detector reports a detection when the network finds a person scored at or
// above the minimum score. Confidence is the best person score in the frame.
type Detector struct {
	mu       sync.Mutex // gocv.Net is not safe for concurrent Forward calls
	net      gocv.Net
	minScore float64
	stats    ai.CallStats
	logger   *logger.Logger
}

// NewDetector loads the network. Errors wrap model.ErrModelLoad.
func NewDetector(modelPath, configPath string, minScore float64, logger *logger.Logger) (*Detector, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: model file %s: %v", model.ErrModelLoad, modelPath, err)
	}
	if _, err := os.Stat(configPath); err != nil {
		return nil, fmt.Errorf("%w: config file %s: %v", model.ErrModelLoad, configPath, err)
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, fmt.Errorf("%w: failed to load network from %s", model.ErrModelLoad, modelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("%w: set backend: %v", model.ErrModelLoad, err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("%w: set target: %v", model.ErrModelLoad, err)
	}

	logger.Info("Detection network initialized from %s", modelPath)
	return &Detector{
		net:      net,
		minScore: minScore,
		logger:   logger,
	}, nil
}

func (d *Detector) Classify(ctx context.Context, frame model.Frame) (model.DetectionResult, error) {
	result, err := d.classify(ctx, frame)
	d.stats.Record(result, err)
	if err != nil {
		return model.SafeDefault(time.Now()), err
	}
	return result, nil
}

func (d *Detector) classify(ctx context.Context, frame model.Frame) (model.DetectionResult, error) {
	if err := ctx.Err(); err != nil {
		return model.DetectionResult{}, fmt.Errorf("%w: %v", model.ErrInference, err)
	}

	mat, err := opencv.MatFromFrame(frame)
	if err != nil {
		return model.DetectionResult{}, fmt.Errorf("%w: frame %d: %v", model.ErrInference, frame.Seq, err)
	}
	defer mat.Close()

	// SSD COCO input: 300x300, scaled to [-1,1], RGB
	blob := gocv.BlobFromImage(mat, 1.0/127.5, image.Pt(300, 300), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	d.mu.Unlock()
	defer output.Close()

	if output.Empty() || output.Total()%7 != 0 {
		return model.DetectionResult{}, fmt.Errorf("%w: unexpected network output of %d values", model.ErrInference, output.Total())
	}

	// rows of [batch_id, class_id, confidence, x1, y1, x2, y2]
	rows := output.Reshape(1, output.Total()/7)
	defer rows.Close()

	best := 0.0
	for i := 0; i < rows.Rows(); i++ {
		if int(rows.GetFloatAt(i, 1)) != personClassID {
			continue
		}
		if score := float64(rows.GetFloatAt(i, 2)); score > best {
			best = score
		}
	}

	return model.NewDetectionResult(best >= d.minScore, best, time.Now()), nil
}

func (d *Detector) Status() model.DetectorStatus {
	return d.stats.Snapshot(ai.BackendDNN, true)
}

func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
