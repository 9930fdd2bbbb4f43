package compression

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sample = []byte(strings.Repeat(`{"type":"RECORD","record":{"stream":"orders","data":{"id":1}}}`+"\n", 200))

func TestRoundTrip(t *testing.T) {
	for _, alg := range Algorithms {
		for _, level := range []Level{Fastest, Default, Best} {
			t.Run(fmt.Sprintf("%s/%d", alg, level), func(t *testing.T) {
				var buf bytes.Buffer
				zw, err := NewWriter(&buf, alg, level)
				require.NoError(t, err)
				_, err = zw.Write(sample)
				require.NoError(t, err)
				require.NoError(t, zw.Close())

				if alg != None {
					assert.Less(t, buf.Len(), len(sample))
				}

				br := bufio.NewReader(&buf)
				assert.Equal(t, alg, Detect(br))
				zr, err := NewReader(br, alg)
				require.NoError(t, err)
				defer zr.Close()
				got, err := io.ReadAll(zr)
				require.NoError(t, err)
				assert.Equal(t, sample, got)
			})
		}
	}
}

func TestDetect_PlainJSON(t *testing.T) {
	assert.Equal(t, None, Detect(bufio.NewReader(strings.NewReader(`{"id":1}`))))
	assert.Equal(t, None, Detect(bufio.NewReader(strings.NewReader(""))))
}

func TestParseAlgorithm(t *testing.T) {
	alg, err := ParseAlgorithm(" ZSTD ")
	require.NoError(t, err)
	assert.Equal(t, Zstd, alg)
	assert.Equal(t, ".zst", alg.Extension())

	alg, err = ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, None, alg)

	_, err = ParseAlgorithm("brotli")
	assert.Error(t, err)
}
