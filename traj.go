package dftbaby

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// TrajWriter appends XYZ frames to a trajectory file during a
// dynamics or optimization run. Filenames ending in .gz are written
// through a gzip stream; long trajectories compress well since most
// of each frame repeats.
type TrajWriter struct {
	f      *os.File
	gz     *gzip.Writer
	w      *bufio.Writer
	natoms int
	frames int
}

// NewTrajWriter creates (truncating) the trajectory file for a system
// of natoms atoms
func NewTrajWriter(filename string, natoms int) (*TrajWriter, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return wrapTraj(f, filename, natoms), nil
}

// AppendTrajWriter opens the trajectory file for appending, keeping
// any frames already written. Appending to a .gz name starts a new
// gzip member; decompressors read concatenated members as one stream.
func AppendTrajWriter(filename string, natoms int) (*TrajWriter, error) {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return wrapTraj(f, filename, natoms), nil
}

func wrapTraj(f *os.File, filename string, natoms int) *TrajWriter {
	t := &TrajWriter{f: f, natoms: natoms}
	if strings.HasSuffix(filename, ".gz") {
		t.gz = gzip.NewWriter(f)
		t.w = bufio.NewWriter(t.gz)
	} else {
		t.w = bufio.NewWriter(f)
	}
	return t
}

// WriteFrame appends one frame. The geometry must keep the atom count
// the writer was opened with.
func (t *TrajWriter) WriteFrame(geom *Geometry, comment string) error {
	if geom.Natoms() != t.natoms {
		return fmt.Errorf("%w: frame has %d atoms, trajectory has %d",
			ErrLengthMismatch, geom.Natoms(), t.natoms)
	}
	t.frames++
	return writeXYZFrame(t.w, geom, comment)
}

// Frames returns the number of frames written so far
func (t *TrajWriter) Frames() int { return t.frames }

// Close flushes and closes the underlying streams
func (t *TrajWriter) Close() error {
	if err := t.w.Flush(); err != nil {
		return err
	}
	if t.gz != nil {
		if err := t.gz.Close(); err != nil {
			return err
		}
	}
	return t.f.Close()
}
