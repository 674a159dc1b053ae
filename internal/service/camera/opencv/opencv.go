// Package opencv binds the camera pipeline to OpenCV through gocv.
package opencv

import (
	"bytes"
	"fmt"
	"image"

	"ignitiongate/internal/model"
	"ignitiongate/internal/service/camera"

	"gocv.io/x/gocv"
)

// captureReadTimeoutMsec is OpenCV's CAP_PROP_READ_TIMEOUT_MSEC.
const captureReadTimeoutMsec gocv.VideoCaptureProperties = 54

type gocvDevice struct {
	id      int
	capture *gocv.VideoCapture
	mat     gocv.Mat
}

// OpenDevice opens a local camera through OpenCV and applies settings.
func OpenDevice(id int, settings camera.Settings) (camera.Device, error) {
	capture, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, fmt.Errorf("%w: open camera %d: %v", model.ErrDeviceUnavailable, id, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: camera %d did not open", model.ErrDeviceUnavailable, id)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(settings.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(settings.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(settings.FPS))
	if settings.ReadTimeout > 0 {
		capture.Set(captureReadTimeoutMsec, float64(settings.ReadTimeout.Milliseconds()))
	}

	return &gocvDevice{id: id, capture: capture, mat: gocv.NewMat()}, nil
}

func (d *gocvDevice) Read() (model.Frame, error) {
	if ok := d.capture.Read(&d.mat); !ok || d.mat.Empty() {
		return model.Frame{}, fmt.Errorf("%w: camera %d returned no image", model.ErrRead, d.id)
	}

	if d.mat.Channels() == 1 {
		if err := gocv.CvtColor(d.mat, &d.mat, gocv.ColorGrayToBGR); err != nil {
			return model.Frame{}, fmt.Errorf("%w: convert grayscale frame: %v", model.ErrRead, err)
		}
	}
	if d.mat.Type() != gocv.MatTypeCV8UC3 {
		return model.Frame{}, fmt.Errorf("%w: unsupported pixel type %v", model.ErrRead, d.mat.Type())
	}

	return model.Frame{
		Format: model.FormatBGR24,
		Width:  d.mat.Cols(),
		Height: d.mat.Rows(),
		Data:   d.mat.ToBytes(),
	}, nil
}

func (d *gocvDevice) Close() error {
	d.mat.Close()
	return d.capture.Close()
}

// MatFromFrame decodes a frame into a BGR Mat. The caller closes the Mat.
func MatFromFrame(frame model.Frame) (gocv.Mat, error) {
	switch frame.Format {
	case model.FormatJPEG:
		mat, err := gocv.IMDecode(frame.Data, gocv.IMReadColor)
		if err != nil {
			return gocv.NewMat(), fmt.Errorf("failed to decode jpeg: %w", err)
		}
		if mat.Empty() {
			mat.Close()
			return gocv.NewMat(), fmt.Errorf("decoded image is empty")
		}
		return mat, nil
	case model.FormatBGR24:
		if len(frame.Data) != frame.Width*frame.Height*3 {
			return gocv.NewMat(), fmt.Errorf("frame %d: %d bytes do not match %dx%d bgr", frame.Seq, len(frame.Data), frame.Width, frame.Height)
		}
		return gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	}
	return gocv.NewMat(), fmt.Errorf("unsupported pixel format %q", frame.Format)
}

// JPEGEncoder re-encodes frames for the web, scaling to Width x Height when set.
type JPEGEncoder struct {
	Quality int
	Width   int
	Height  int
}

func (e JPEGEncoder) Encode(frame model.Frame) ([]byte, error) {
	if frame.Format == model.FormatJPEG && (e.Width == 0 || (frame.Width == e.Width && frame.Height == e.Height)) {
		return bytes.Clone(frame.Data), nil
	}

	mat, err := MatFromFrame(frame)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	out := mat
	if e.Width > 0 && e.Height > 0 && (mat.Cols() != e.Width || mat.Rows() != e.Height) {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(mat, &resized, image.Pt(e.Width, e.Height), 0, 0, gocv.InterpolationLinear)
		if resized.Empty() {
			return nil, fmt.Errorf("failed to resize frame %d", frame.Seq)
		}
		out = resized
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, out, []int{gocv.IMWriteJpegQuality, e.Quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	defer buf.Close()

	return bytes.Clone(buf.GetBytes()), nil
}
