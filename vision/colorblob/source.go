package colorblob

import (
	"context"
	"image"
	// Registered decoders for recorded frames.
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/cyber-run/OpenMV-H7/vision"
)

// ErrNoMoreFrames is returned by a recorded frame source once every frame has been served.
var ErrNoMoreFrames = errors.New("no more frames")

// A FrameSource returns the next captured image.
type FrameSource interface {
	NextFrame(ctx context.Context) (image.Image, error)
}

// Source runs a Finder over every frame of a FrameSource.
type Source struct {
	frames FrameSource
	finder *Finder
}

// NewSource returns a vision.Source that finds blobs in the frames of src.
func NewSource(src FrameSource, finder *Finder) *Source {
	return &Source{frames: src, finder: finder}
}

// Blobs grabs one frame and returns its blobs.
func (s *Source) Blobs(ctx context.Context) ([]vision.Blob, error) {
	img, err := s.frames.NextFrame(ctx)
	if err != nil {
		return nil, err
	}
	return s.finder.Find(img), nil
}

var _ = vision.Source(&Source{})

// DirFrames serves the PNG and JPEG files of a directory in lexical order, one per call.
type DirFrames struct {
	mu    sync.Mutex
	fs    afero.Fs
	files []string
	next  int
	loop  bool
}

// NewDirFrames lists the images in dir. When loop is set the frames repeat forever.
func NewDirFrames(fs afero.Fs, dir string, loop bool) (*DirFrames, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading frame directory %q", dir)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no png or jpeg frames in %q", dir)
	}
	sort.Strings(files)
	return &DirFrames{fs: fs, files: files, loop: loop}, nil
}

// NextFrame decodes the next image.
func (d *DirFrames) NextFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	if d.next >= len(d.files) {
		if !d.loop {
			d.mu.Unlock()
			return nil, ErrNoMoreFrames
		}
		d.next = 0
	}
	name := d.files[d.next]
	d.next++
	d.mu.Unlock()

	f, err := d.fs.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "opening frame %q", name)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding frame %q", name)
	}
	return img, nil
}
