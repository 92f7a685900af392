// Package compression provides the output compression used by the CSV
// export sinks. Gzip is the default for Cloud Storage objects consumed
// by TensorFlow input pipelines; snappy is available for intermediate
// files where speed matters more than ratio.
package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Snappy represents snappy compression
	Snappy Algorithm = "snappy"
)

// ParseAlgorithm converts a configuration string into an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case "", None:
		return None, nil
	case Gzip:
		return Gzip, nil
	case Snappy:
		return Snappy, nil
	default:
		return None, fmt.Errorf("unsupported compression algorithm: %s", s)
	}
}

// Extension returns the file name suffix for the algorithm, including
// the leading dot. None returns an empty string.
func (a Algorithm) Extension() string {
	switch a {
	case Gzip:
		return ".gz"
	case Snappy:
		return ".snappy"
	default:
		return ""
	}
}

// nopWriteCloser passes writes through and closes nothing.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// WrapWriter wraps w with a compressing writer for the algorithm.
// Closing the returned writer flushes the compressor but does not close w.
func WrapWriter(w io.Writer, algorithm Algorithm) (io.WriteCloser, error) {
	switch algorithm {
	case None:
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}
}

// WrapReader wraps r with a decompressing reader for the algorithm.
func WrapReader(r io.Reader, algorithm Algorithm) (io.Reader, error) {
	switch algorithm {
	case None:
		return r, nil
	case Gzip:
		return gzip.NewReader(r)
	case Snappy:
		return snappy.NewReader(r), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}
}

// Compress compresses data in memory with the algorithm.
func Compress(data []byte, algorithm Algorithm) ([]byte, error) {
	if algorithm == None {
		return data, nil
	}

	var buf bytes.Buffer
	w, err := WrapWriter(&buf, algorithm)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress decompresses data in memory with the algorithm.
func Decompress(data []byte, algorithm Algorithm) ([]byte, error) {
	if algorithm == None {
		return data, nil
	}

	r, err := WrapReader(bytes.NewReader(data), algorithm)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}
