package handler

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sync"
	"time"

	"ignitiongate/internal/logger"
	"ignitiongate/internal/model"
	"ignitiongate/internal/service/websocket"

	gorilla "github.com/gorilla/websocket"
)

// mjpegFrameInterval paces /video_feed at roughly 30 fps.
const mjpegFrameInterval = 33 * time.Millisecond

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all origins.
var Upgrader = gorilla.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

var placeholderJPEG = sync.OnceValue(func() []byte {
	img := image.NewGray(image.Rect(0, 0, 640, 480))
	for i := range img.Pix {
		img.Pix[i] = 32
	}
	for x := 160; x < 480; x++ {
		img.SetGray(x, 240, color.Gray{Y: 200})
	}
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 60})
	return buf.Bytes()
})

// VideoFeedHandler streams JPEG frames as multipart/x-mixed-replace while the
// system is active. A placeholder image is sent until the first frame exists.
// A stopped system gets 503 so clients can tell there is no stream.
func VideoFeedHandler(system System, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !system.Status().Active {
			http.Error(w, "System is not running", http.StatusServiceUnavailable)
			return
		}

		mw := multipart.NewWriter(w)
		if err := mw.SetBoundary("frame"); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache")
		rc := http.NewResponseController(w)

		ticker := time.NewTicker(mjpegFrameInterval)
		defer ticker.Stop()

		for system.Status().Active {
			data, err := system.LatestEncodedFrame()
			if errors.Is(err, model.ErrNoFrame) {
				data = placeholderJPEG()
			} else if err != nil {
				logger.Warning("Video feed: %v", err)
				data = placeholderJPEG()
			}

			part, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"image/jpeg"}})
			if err != nil {
				return
			}
			if _, err := part.Write(data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}

			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
			}
		}
		mw.Close()
	}
}

// CameraFeedHandler returns the latest frame as a single JPEG.
func CameraFeedHandler(system System) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := system.LatestEncodedFrame()
		if errors.Is(err, model.ErrNoFrame) {
			http.Error(w, "No frame captured yet", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(data)
	}
}

// ViewWebsocketHandler registers viewers in the hub, which pushes status
// JSON and JPEG frames to them.
func ViewWebsocketHandler(hub *websocket.Hub, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}

		hub.Register(connection)
		defer hub.Unregister(connection)

		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				if !gorilla.IsCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway) {
					logger.Warning("Viewer %s disconnected with error: %v", r.RemoteAddr, err)
				}
				return
			}
		}
	}
}
