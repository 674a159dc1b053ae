package model

import "time"

// PixelFormat describes how Frame.Data is laid out.
type PixelFormat string

const (
	// FormatBGR24 is packed 8-bit BGR, Height rows of Width*3 bytes.
	FormatBGR24 PixelFormat = "bgr24"
	// FormatJPEG is a complete JPEG file as delivered by network cameras.
	FormatJPEG PixelFormat = "jpeg"
)

// Frame is one captured image. A Frame handed out by the camera package is
// never modified afterwards, so readers may keep it without copying Data.
type Frame struct {
	Seq        uint64      `json:"seq"`
	CapturedAt time.Time   `json:"capturedAt"`
	Format     PixelFormat `json:"format"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	Data       []byte      `json:"-"`
}

// Empty reports whether the frame carries no image data.
func (f Frame) Empty() bool {
	return len(f.Data) == 0
}
