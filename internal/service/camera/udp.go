package camera

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"net"
	"time"

	"ignitiongate/internal/model"
)

// maxUDPFrameSize drops a partial frame that never sees its end marker.
const maxUDPFrameSize = 4 << 20

var (
	jpegHeader = []byte{0xFF, 0xD8}
	jpegFooter = []byte{0xFF, 0xD9}
)

// udpDevice reassembles JPEG frames that a network camera sends as a run of
// datagrams: the first starts with the JPEG SOI marker, the last ends with EOI.
type udpDevice struct {
	port        int
	conn        *net.UDPConn
	readTimeout time.Duration
	packet      []byte
	frame       bytes.Buffer
	peer        string
}

// OpenUDP listens on the UDP port id for a single camera. Packets from any
// other sender than the first one seen are ignored.
func OpenUDP(id int, settings Settings) (Device, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: id})
	if err != nil {
		return nil, fmt.Errorf("%w: listen on udp port %d: %v", model.ErrDeviceUnavailable, id, err)
	}

	timeout := settings.ReadTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	return &udpDevice{
		port:        id,
		conn:        conn,
		readTimeout: timeout,
		packet:      make([]byte, 65535),
	}, nil
}

func (d *udpDevice) Read() (model.Frame, error) {
	if err := d.conn.SetReadDeadline(time.Now().Add(d.readTimeout)); err != nil {
		return model.Frame{}, fmt.Errorf("%w: set read deadline: %v", model.ErrRead, err)
	}

	for {
		n, remoteAddr, err := d.conn.ReadFromUDP(d.packet)
		if err != nil {
			return model.Frame{}, fmt.Errorf("%w: udp port %d: %v", model.ErrRead, d.port, err)
		}

		ip := remoteAddr.IP.String()
		if d.peer == "" {
			d.peer = ip
		}
		if ip != d.peer {
			continue
		}

		data := d.packet[:n]
		if bytes.HasPrefix(data, jpegHeader) {
			d.frame.Reset()
		}
		d.frame.Write(data)

		if d.frame.Len() > maxUDPFrameSize {
			d.frame.Reset()
			continue
		}
		if !bytes.HasSuffix(data, jpegFooter) {
			continue
		}

		full := bytes.Clone(d.frame.Bytes())
		d.frame.Reset()
		if !bytes.HasPrefix(full, jpegHeader) {
			// tail of a frame whose start was missed
			continue
		}

		cfg, err := jpeg.DecodeConfig(bytes.NewReader(full))
		if err != nil {
			return model.Frame{}, fmt.Errorf("%w: corrupt jpeg from %s: %v", model.ErrRead, d.peer, err)
		}
		return model.Frame{
			Format: model.FormatJPEG,
			Width:  cfg.Width,
			Height: cfg.Height,
			Data:   full,
		}, nil
	}
}

func (d *udpDevice) Close() error {
	return d.conn.Close()
}
