package backup

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectCompression(t *testing.T) {
	tests := []struct {
		suffix string
		want   CompressionType
	}{
		{suffix: "tar.gz", want: CompressionTypeGzip},
		{suffix: "tgz", want: CompressionTypeGzip},
		{suffix: "sql.GZ", want: CompressionTypeGzip},
		{suffix: "tar.zst", want: CompressionTypeZstd},
		{suffix: "sql.zstd", want: CompressionTypeZstd},
		{suffix: "tar.lz4", want: CompressionTypeLZ4},
		{suffix: "tar", want: CompressionTypeNone},
		{suffix: "sql", want: CompressionTypeNone},
		{suffix: "", want: CompressionTypeNone},
	}

	for _, tt := range tests {
		t.Run(tt.suffix, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectCompression(tt.suffix))
		})
	}
}

func TestIsTarArchive(t *testing.T) {
	assert.True(t, IsTarArchive("tar.gz"))
	assert.True(t, IsTarArchive("tgz"))
	assert.True(t, IsTarArchive("tar"))
	assert.True(t, IsTarArchive("TAR.ZST"))
	assert.False(t, IsTarArchive("sql.gz"))
	assert.False(t, IsTarArchive(""))
}

func TestCompressionManager_RoundTrip(t *testing.T) {
	cm := NewCompressionManager()
	payload := []byte(strings.Repeat("backup expiry payload ", 512))

	for _, algorithm := range []CompressionType{CompressionTypeNone, CompressionTypeGzip, CompressionTypeLZ4, CompressionTypeZstd} {
		t.Run(string(algorithm), func(t *testing.T) {
			var buf bytes.Buffer
			writer, err := cm.NewWriter(&buf, algorithm, 0)
			require.NoError(t, err)
			_, err = writer.Write(payload)
			require.NoError(t, err)
			require.NoError(t, writer.Close())

			if algorithm != CompressionTypeNone {
				assert.Less(t, buf.Len(), len(payload))
			}

			reader, err := cm.NewReader(&buf, algorithm)
			require.NoError(t, err)
			decoded, err := io.ReadAll(reader)
			require.NoError(t, err)
			require.NoError(t, reader.Close())
			assert.Equal(t, payload, decoded)
		})
	}
}

func TestCompressionManager_GetCodec(t *testing.T) {
	cm := NewCompressionManager()

	codec, err := cm.GetCodec(CompressionTypeZstd)
	require.NoError(t, err)
	assert.Equal(t, CompressionTypeZstd, codec.GetAlgorithm())
	assert.Equal(t, 3, codec.GetDefaultLevel())

	_, err = cm.GetCodec("BROTLI")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported compression algorithm")
}

func TestGzipCodec_InvalidHeader(t *testing.T) {
	_, err := NewCompressionManager().NewReader(strings.NewReader("not gzip at all"), CompressionTypeGzip)
	require.Error(t, err)

	var backupErr *BackupError
	require.ErrorAs(t, err, &backupErr)
	assert.Equal(t, BackupErrorTypeCorruption, backupErr.Type)
}

func TestLZ4Level(t *testing.T) {
	assert.Equal(t, lz4Level(0), lz4Level(1))
	assert.NotEqual(t, lz4Level(1), lz4Level(9))
	assert.Equal(t, lz4Level(7), lz4Level(12))
}
