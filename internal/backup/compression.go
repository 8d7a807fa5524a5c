package backup

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec streams one compression format
type Codec interface {
	NewReader(r io.Reader) (io.ReadCloser, error)
	NewWriter(w io.Writer, level int) (io.WriteCloser, error)
	GetAlgorithm() CompressionType
	GetDefaultLevel() int
}

// CompressionManager maps artifact suffixes onto codecs
type CompressionManager struct {
	codecs map[CompressionType]Codec
}

// NewCompressionManager creates a new compression manager
func NewCompressionManager() *CompressionManager {
	cm := &CompressionManager{
		codecs: make(map[CompressionType]Codec),
	}

	cm.codecs[CompressionTypeGzip] = &GzipCodec{}
	cm.codecs[CompressionTypeLZ4] = &LZ4Codec{}
	cm.codecs[CompressionTypeZstd] = &ZstdCodec{}

	return cm
}

// DetectCompression derives the compression of an artifact from its suffix
func DetectCompression(suffix string) CompressionType {
	suffix = strings.ToLower(suffix)
	switch {
	case strings.HasSuffix(suffix, "gz"), strings.HasSuffix(suffix, "tgz"):
		return CompressionTypeGzip
	case strings.HasSuffix(suffix, "zst"), strings.HasSuffix(suffix, "zstd"):
		return CompressionTypeZstd
	case strings.HasSuffix(suffix, "lz4"):
		return CompressionTypeLZ4
	default:
		return CompressionTypeNone
	}
}

// IsTarArchive reports whether the decoded stream of suffix is a tar archive
func IsTarArchive(suffix string) bool {
	suffix = strings.ToLower(suffix)
	return strings.HasSuffix(suffix, "tgz") || strings.Contains(suffix, "tar")
}

// NewReader wraps r with the decoder for algorithm
func (cm *CompressionManager) NewReader(r io.Reader, algorithm CompressionType) (io.ReadCloser, error) {
	if algorithm == CompressionTypeNone {
		return io.NopCloser(r), nil
	}

	codec, err := cm.GetCodec(algorithm)
	if err != nil {
		return nil, err
	}
	return codec.NewReader(r)
}

// NewWriter wraps w with the encoder for algorithm. Level 0 uses the codec default.
func (cm *CompressionManager) NewWriter(w io.Writer, algorithm CompressionType, level int) (io.WriteCloser, error) {
	if algorithm == CompressionTypeNone {
		return nopWriteCloser{w}, nil
	}

	codec, err := cm.GetCodec(algorithm)
	if err != nil {
		return nil, err
	}
	if level == 0 {
		level = codec.GetDefaultLevel()
	}
	return codec.NewWriter(w, level)
}

// GetCodec returns the codec for the specified algorithm
func (cm *CompressionManager) GetCodec(algorithm CompressionType) (Codec, error) {
	codec, exists := cm.codecs[algorithm]
	if !exists {
		return nil, NewCompressionError(fmt.Sprintf("unsupported compression algorithm: %s", algorithm), nil)
	}
	return codec, nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// GzipCodec implements gzip streams
type GzipCodec struct{}

func (gc *GzipCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	reader, err := gzip.NewReader(r)
	if err != nil {
		return nil, NewCorruptionError("invalid gzip header", err)
	}
	return reader, nil
}

func (gc *GzipCodec) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	writer, err := gzip.NewWriterLevel(w, level)
	if err != nil {
		return nil, NewCompressionError("failed to create gzip writer", err)
	}
	return writer, nil
}

func (gc *GzipCodec) GetAlgorithm() CompressionType {
	return CompressionTypeGzip
}

func (gc *GzipCodec) GetDefaultLevel() int {
	return gzip.DefaultCompression
}

// LZ4Codec implements lz4 frame streams
type LZ4Codec struct{}

func (lc *LZ4Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

func (lc *LZ4Codec) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	writer := lz4.NewWriter(w)
	if err := writer.Apply(lz4.CompressionLevelOption(lz4Level(level))); err != nil {
		return nil, NewCompressionError("failed to configure lz4 writer", err)
	}
	return writer, nil
}

func (lc *LZ4Codec) GetAlgorithm() CompressionType {
	return CompressionTypeLZ4
}

func (lc *LZ4Codec) GetDefaultLevel() int {
	return 1
}

func lz4Level(level int) lz4.CompressionLevel {
	switch {
	case level <= 1:
		return lz4.Fast
	case level <= 3:
		return lz4.Level3
	case level <= 6:
		return lz4.Level6
	default:
		return lz4.Level9
	}
}

// ZstdCodec implements zstd streams
type ZstdCodec struct{}

func (zc *ZstdCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return nil, NewCorruptionError("failed to create zstd decoder", err)
	}
	return decoder.IOReadCloser(), nil
}

func (zc *ZstdCodec) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, NewCompressionError("failed to create zstd encoder", err)
	}
	return encoder, nil
}

func (zc *ZstdCodec) GetAlgorithm() CompressionType {
	return CompressionTypeZstd
}

func (zc *ZstdCodec) GetDefaultLevel() int {
	return 3
}
