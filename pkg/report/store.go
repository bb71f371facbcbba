package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/eunmann/numabench/internal/logctx"
	"github.com/eunmann/numabench/pkg/fileutil"
	"github.com/eunmann/numabench/pkg/humanfmt"
	"github.com/eunmann/numabench/pkg/s3store"
)

// ErrNoDestination is returned for an empty destination.
var ErrNoDestination = errors.New("report: empty destination")

// CompressedSuffix selects zstd compression for a destination.
const CompressedSuffix = ".zst"

// Uploader stores an object in S3. *s3store.Client implements it.
type Uploader interface {
	Upload(ctx context.Context, bucket, key string, body io.Reader) (*s3store.UploadResult, error)
}

// Store routes export output to its destination:
//
//   - a local path is written to a temp file and renamed into place
//   - a ".zst" suffix compresses the stream with zstd
//   - "s3://bucket/key" is buffered in memory and uploaded
type Store struct {
	// Uploader handles s3:// destinations. When nil, a client is built from
	// the default AWS configuration on first use.
	Uploader Uploader

	mu sync.Mutex
}

// Write runs write against the destination named by dest. A nil Store
// behaves like the zero Store.
func (s *Store) Write(ctx context.Context, dest string, write func(w io.Writer) error) error {
	if s == nil {
		s = &Store{}
	}
	if dest == "" {
		return ErrNoDestination
	}
	if strings.HasSuffix(dest, CompressedSuffix) {
		write = compressed(write)
	}
	if s3store.IsS3URI(dest) {
		return s.upload(ctx, dest, write)
	}
	if fileutil.IsNonEmpty(dest) {
		logctx.FromContext(ctx).Warn().Str("path", dest).Msg("replacing existing file")
	}
	if err := fileutil.WriteAtomic(dest, write); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return nil
}

func (s *Store) upload(ctx context.Context, dest string, write func(w io.Writer) error) error {
	bucket, key, err := s3store.ParseObjectURI(dest)
	if err != nil {
		return err
	}
	up, err := s.uploader(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return err
	}
	size := int64(buf.Len())
	res, err := up.Upload(ctx, bucket, key, &buf)
	if err != nil {
		return err
	}
	logctx.FromContext(ctx).Debug().
		Str("bucket", res.Bucket).
		Str("key", res.Key).
		Str("size", humanfmt.Bytes(size)).
		Dur("duration", res.Duration).
		Msg("uploaded export")
	return nil
}

func (s *Store) uploader(ctx context.Context) (Uploader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Uploader == nil {
		c, err := s3store.NewClient(ctx)
		if err != nil {
			return nil, err
		}
		s.Uploader = c
	}
	return s.Uploader, nil
}

// compressed wraps write so its output passes through a zstd encoder.
func compressed(write func(w io.Writer) error) func(w io.Writer) error {
	return func(w io.Writer) error {
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("create zstd encoder: %w", err)
		}
		if err := write(enc); err != nil {
			enc.Close()
			return err
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("close zstd encoder: %w", err)
		}
		return nil
	}
}
