// Package serialsource reads blob frames streamed by an OpenMV camera over USB serial.
//
// The camera prints one line per frame. Blobs are separated by ';' and each blob is
// "cx,cy,w,h,pixels,code" where (cx, cy) is the centroid and w/h is the bounding box size
// around it. An empty line is a frame in which nothing was found.
package serialsource

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.bug.st/serial"

	"github.com/cyber-run/OpenMV-H7/logging"
	"github.com/cyber-run/OpenMV-H7/vision"
)

// DefaultBaudRate is the rate the camera firmware opens its USB VCP with.
const DefaultBaudRate = 115200

// ErrMalformedFrame is returned when a line cannot be parsed as a frame.
var ErrMalformedFrame = errors.New("malformed blob frame")

// Source is a vision.Source backed by a line oriented stream.
type Source struct {
	mu     sync.Mutex
	rc     io.ReadCloser
	scan   *bufio.Scanner
	logger logging.Logger
}

// Open opens the serial port at path.
func Open(path string, baudRate int, logger logging.Logger) (*Source, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "opening camera port %q", path)
	}
	logger.Infow("camera serial link open", "port", path, "baud", baudRate)
	return NewSource(port, logger), nil
}

// NewSource reads frames from rc.
func NewSource(rc io.ReadCloser, logger logging.Logger) *Source {
	return &Source{rc: rc, scan: bufio.NewScanner(rc), logger: logger}
}

// Blobs blocks until the next frame line arrives. A line that does not parse, such as the tail
// of a frame cut off when the port opened, is dropped and read as a frame with no blobs.
func (s *Source) Blobs(ctx context.Context) ([]vision.Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.scan.Scan() {
		if err := s.scan.Err(); err != nil {
			return nil, errors.Wrap(err, "reading camera frame")
		}
		return nil, io.EOF
	}
	line := s.scan.Text()
	blobs, err := ParseFrame(line)
	if err != nil {
		s.logger.Debugw("dropping camera line", "line", line, "error", err)
		return nil, nil
	}
	return blobs, nil
}

// Close closes the underlying port.
func (s *Source) Close() error {
	return s.rc.Close()
}

var _ = vision.Source(&Source{})

// ParseFrame parses one frame line.
func ParseFrame(line string) ([]vision.Blob, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	parts := strings.Split(line, ";")
	blobs := make([]vision.Blob, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		fields := strings.Split(part, ",")
		if len(fields) != 6 {
			return nil, errors.Wrapf(ErrMalformedFrame, "blob %q has %d fields, want 6", part, len(fields))
		}
		var vals [6]int
		for i, f := range fields {
			v, err := strconv.Atoi(strings.TrimSpace(f))
			if err != nil {
				return nil, errors.Wrapf(ErrMalformedFrame, "blob %q: %v", part, err)
			}
			vals[i] = v
		}
		if vals[2] < 0 || vals[3] < 0 || vals[4] < 0 || vals[5] < 0 {
			return nil, errors.Wrapf(ErrMalformedFrame, "blob %q has negative fields", part)
		}
		cx, cy, w, h := vals[0], vals[1], vals[2], vals[3]
		x0, y0 := cx-w/2, cy-h/2
		blobs = append(blobs, vision.Blob{
			CX:     cx,
			CY:     cy,
			Pixels: vals[4],
			Rect:   image.Rect(x0, y0, x0+w, y0+h),
			Code:   vision.Code(vals[5]),
		})
	}
	return blobs, nil
}

// FormatFrame renders blobs in the wire format read by ParseFrame.
func FormatFrame(blobs []vision.Blob) string {
	parts := make([]string, 0, len(blobs))
	for _, b := range blobs {
		parts = append(parts, fmt.Sprintf("%d,%d,%d,%d,%d,%d",
			b.CX, b.CY, b.Rect.Dx(), b.Rect.Dy(), b.Pixels, uint32(b.Code)))
	}
	return strings.Join(parts, ";")
}
