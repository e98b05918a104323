package serialsource

import (
	"context"
	"image"
	"io"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/cyber-run/OpenMV-H7/logging"
	"github.com/cyber-run/OpenMV-H7/vision"
)

func TestParseFrame(t *testing.T) {
	blobs, err := ParseFrame("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, blobs, test.ShouldBeEmpty)

	blobs, err = ParseFrame("160,120,20,10,180,1; 40,60,8,8,64,4\r")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, blobs, test.ShouldHaveLength, 2)
	test.That(t, blobs[0], test.ShouldResemble, vision.Blob{
		CX: 160, CY: 120, Pixels: 180, Rect: image.Rect(150, 115, 170, 125), Code: 1,
	})
	test.That(t, blobs[1].Code, test.ShouldEqual, vision.CodeFor(2))

	for _, bad := range []string{"1,2,3", "a,2,3,4,5,6", "1,2,-3,4,5,6"} {
		_, err := ParseFrame(bad)
		test.That(t, errors.Is(err, ErrMalformedFrame), test.ShouldBeTrue)
	}
}

func TestFormatFrame(t *testing.T) {
	in := []vision.Blob{
		{CX: 160, CY: 120, Pixels: 180, Rect: image.Rect(150, 115, 170, 125), Code: 1},
		{CX: 41, CY: 60, Pixels: 64, Rect: image.Rect(37, 56, 45, 64), Code: 5},
	}
	line := FormatFrame(in)
	test.That(t, line, test.ShouldEqual, "160,120,20,10,180,1;41,60,8,8,64,5")

	out, err := ParseFrame(line)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldResemble, in)
}

type nopCloser struct {
	io.Reader
	closed bool
}

func (n *nopCloser) Close() error {
	n.closed = true
	return nil
}

func TestSource(t *testing.T) {
	logger := logging.NewTestLogger(t)
	rc := &nopCloser{Reader: strings.NewReader("160,120,20,10,180,1\n\nnot a frame\n")}
	src := NewSource(rc, logger)
	ctx := context.Background()

	blobs, err := src.Blobs(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, blobs, test.ShouldHaveLength, 1)

	blobs, err = src.Blobs(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, blobs, test.ShouldBeEmpty)

	// garbled lines read as empty frames
	blobs, err = src.Blobs(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, blobs, test.ShouldBeEmpty)

	_, err = src.Blobs(ctx)
	test.That(t, err, test.ShouldEqual, io.EOF)

	cancelCtx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = src.Blobs(cancelCtx)
	test.That(t, err, test.ShouldEqual, context.Canceled)

	test.That(t, src.Close(), test.ShouldBeNil)
	test.That(t, rc.closed, test.ShouldBeTrue)
}
