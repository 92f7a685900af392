package compression

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		input   string
		want    Algorithm
		wantErr bool
	}{
		{"", None, false},
		{"none", None, false},
		{"gzip", Gzip, false},
		{"snappy", Snappy, false},
		{"lz4", None, true},
	}

	for _, tt := range tests {
		got, err := ParseAlgorithm(tt.input)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.input)
			continue
		}
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got)
	}
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "", None.Extension())
	assert.Equal(t, ".gz", Gzip.Extension())
	assert.Equal(t, ".snappy", Snappy.Extension())
}

func TestRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat("weight_pounds,is_male,mother_age\n7.63,true,32\n", 100))

	for _, algorithm := range []Algorithm{None, Gzip, Snappy} {
		t.Run(string(algorithm), func(t *testing.T) {
			compressed, err := Compress(payload, algorithm)
			require.NoError(t, err)

			decompressed, err := Decompress(compressed, algorithm)
			require.NoError(t, err)
			assert.Equal(t, payload, decompressed)
		})
	}
}

func TestGzipShrinksRepetitiveData(t *testing.T) {
	payload := []byte(strings.Repeat("8.5,-73.99,40.75,-73.97,40.76,1\n", 500))

	compressed, err := Compress(payload, Gzip)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(payload))
}

func TestWrapWriterDoesNotCloseUnderlying(t *testing.T) {
	var buf bytes.Buffer

	w, err := WrapWriter(&buf, Gzip)
	require.NoError(t, err)

	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// The buffer is still usable after the compressor is closed
	decompressed, err := Decompress(buf.Bytes(), Gzip)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), decompressed)
}
