package meta

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"sync"

	"github.com/cespare/xxhash"
	"github.com/franz/toki/internal/util"
	"github.com/spf13/afero"
	"lukechampine.com/blake3"
)

// Algorithm names a content digest
type Algorithm string

const (
	AlgoMD5    Algorithm = "md5"
	AlgoXXHash Algorithm = "xxhash"
	AlgoBLAKE3 Algorithm = "blake3"
)

// ShortHashLen is the number of hex characters used in filenames
const ShortHashLen = 8

// ParseAlgorithm validates a --hash value. Empty selects md5.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case "", AlgoMD5:
		return AlgoMD5, nil
	case AlgoXXHash, AlgoBLAKE3:
		return Algorithm(s), nil
	}
	return "", fmt.Errorf("%w: unknown hash algorithm %q (want md5, xxhash or blake3)", util.ErrInvalidConfig, s)
}

// Digest is a full hex-encoded content digest
type Digest string

// Short returns the display form used in canonical filenames
func (d Digest) Short() string {
	if len(d) <= ShortHashLen {
		return string(d)
	}
	return string(d[:ShortHashLen])
}

// Hasher computes content digests of files. It is safe for concurrent use.
type Hasher struct {
	fs    afero.Fs
	algo  Algorithm
	retry *util.RetryConfig
	bufs  sync.Pool
}

// NewHasher creates a hasher reading through fs with bufSize-byte reads
func NewHasher(fs afero.Fs, algo Algorithm, bufSize int, retry *util.RetryConfig) *Hasher {
	if algo == "" {
		algo = AlgoMD5
	}
	if bufSize <= 0 {
		bufSize = 128 * 1024
	}
	h := &Hasher{fs: fs, algo: algo, retry: retry}
	h.bufs.New = func() interface{} {
		b := make([]byte, bufSize)
		return &b
	}
	return h
}

// Algorithm returns the configured digest
func (h *Hasher) Algorithm() Algorithm {
	return h.algo
}

func (h *Hasher) newHash() hash.Hash {
	switch h.algo {
	case AlgoXXHash:
		return xxhash.New()
	case AlgoBLAKE3:
		return blake3.New(32, nil)
	}
	return md5.New()
}

// Sum streams the file at path through the digest. Read failures are
// reported as util.ErrUnreadable.
func (h *Hasher) Sum(ctx context.Context, path string) (Digest, error) {
	f, err := util.RetryableOpen(h.fs, path, h.retry)
	if err != nil {
		return "", fmt.Errorf("%w: %w", util.ErrUnreadable, err)
	}
	defer f.Close()

	return h.SumReader(ctx, f)
}

// SumReader digests r until EOF or ctx is cancelled
func (h *Hasher) SumReader(ctx context.Context, r io.Reader) (Digest, error) {
	bufp := h.bufs.Get().(*[]byte)
	defer h.bufs.Put(bufp)

	d := h.newHash()
	if _, err := io.CopyBuffer(d, &contextReader{ctx: ctx, r: r}, *bufp); err != nil {
		return "", fmt.Errorf("%w: %w", util.ErrUnreadable, err)
	}
	return Digest(hex.EncodeToString(d.Sum(nil))), nil
}

// contextReader checks for cancellation between reads
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
