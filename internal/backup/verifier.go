package backup

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"time"
)

// VerifyResult describes a read-back check of one artifact
type VerifyResult struct {
	Artifact     string          `json:"artifact" yaml:"artifact"`
	Compression  CompressionType `json:"compression" yaml:"compression"`
	StoredBytes  int64           `json:"stored_bytes" yaml:"stored_bytes"`
	DecodedBytes int64           `json:"decoded_bytes" yaml:"decoded_bytes"`
	TarEntries   int             `json:"tar_entries,omitempty" yaml:"tar_entries,omitempty"`
	Duration     time.Duration   `json:"duration" yaml:"duration"`
}

// VerifyOutcome is the verification of the newest artifact of one entity in one store
type VerifyOutcome struct {
	Store  string        `json:"store" yaml:"store"`
	Class  EntityClass   `json:"class" yaml:"class"`
	Entity string        `json:"entity" yaml:"entity"`
	Result *VerifyResult `json:"result,omitempty" yaml:"result,omitempty"`
	Error  string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// OK reports whether the newest artifact decoded cleanly
func (vo *VerifyOutcome) OK() bool {
	return vo.Error == "" && vo.Result != nil
}

// ArtifactVerifier reads artifacts back from a store and decodes them
// completely, so that a corrupt newest backup is detected before older
// ones are expired
type ArtifactVerifier struct {
	compression *CompressionManager
}

// NewArtifactVerifier creates a verifier with the default codecs
func NewArtifactVerifier() *ArtifactVerifier {
	return &ArtifactVerifier{
		compression: NewCompressionManager(),
	}
}

// VerifyLatest verifies the newest valid artifact of entity in dir
func (v *ArtifactVerifier) VerifyLatest(ctx context.Context, store ArtifactStore, dir, entity string) (*VerifyResult, error) {
	infos, err := store.List(ctx, dir)
	if err != nil {
		return nil, err
	}

	artifacts, _ := ParseArtifacts(entity, Names(infos))
	if len(artifacts) == 0 {
		return nil, NewNotFoundError(fmt.Sprintf("no artifacts for '%s' in '%s'", entity, dir), nil)
	}

	return v.Verify(ctx, store, dir, SortArtifactsNewestFirst(artifacts)[0])
}

// Verify streams artifact through its decoder to EOF. Tar archives are
// additionally walked header by header.
func (v *ArtifactVerifier) Verify(ctx context.Context, store ArtifactStore, dir string, artifact BackupArtifact) (*VerifyResult, error) {
	start := time.Now()
	result := &VerifyResult{
		Artifact:    artifact.Name,
		Compression: DetectCompression(artifact.Suffix),
	}

	rc, err := store.Open(ctx, dir, artifact.Name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	stored := &countingReader{r: rc}
	decoder, err := v.compression.NewReader(stored, result.Compression)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	decoded := &countingReader{r: &contextReader{ctx: ctx, r: decoder}}

	if IsTarArchive(artifact.Suffix) {
		entries, err := walkTar(decoded)
		if err != nil {
			return nil, NewCorruptionError(fmt.Sprintf("artifact '%s' is not a valid tar archive", artifact.Name), err)
		}
		result.TarEntries = entries
	}

	// Drain trailing data so checksums in the compression frame are validated
	if _, err := io.Copy(io.Discard, decoded); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewCorruptionError(fmt.Sprintf("artifact '%s' could not be decoded", artifact.Name), err)
	}

	result.StoredBytes = stored.n
	result.DecodedBytes = decoded.n
	result.Duration = time.Since(start)
	return result, nil
}

func walkTar(r io.Reader) (int, error) {
	tr := tar.NewReader(r)
	entries := 0
	for {
		_, err := tr.Next()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return entries, err
		}
		if _, err := io.Copy(io.Discard, tr); err != nil {
			return entries, err
		}
		entries++
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
