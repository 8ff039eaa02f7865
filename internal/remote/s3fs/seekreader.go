package s3fs

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// seekReader exposes an S3 object as an io.ReadSeekCloser. GetObject
// bodies are forward-only streams, so a seek away from the current
// position drops the stream; the next Read re-opens the object with a
// ranged request from the new offset.
type seekReader struct {
	ctx    context.Context
	client *s3.Client
	bucket string
	key    string
	size   int64

	pos  int64
	body io.ReadCloser // nil until first Read after open/seek
}

func newSeekReader(ctx context.Context, client *s3.Client, bucket, key string, size int64) *seekReader {
	return &seekReader{ctx: ctx, client: client, bucket: bucket, key: key, size: size}
}

func (r *seekReader) Read(p []byte) (int, error) {
	if r.pos >= r.size {
		return 0, io.EOF
	}
	if r.body == nil {
		out, err := r.client.GetObject(r.ctx, &s3.GetObjectInput{
			Bucket: aws.String(r.bucket),
			Key:    aws.String(r.key),
			Range:  aws.String(fmt.Sprintf("bytes=%d-", r.pos)),
		})
		if err != nil {
			return 0, fmt.Errorf("get %s at %d: %w", r.key, r.pos, err)
		}
		r.body = out.Body
	}

	n, err := r.body.Read(p)
	r.pos += int64(n)
	return n, err
}

func (r *seekReader) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.pos + offset
	case io.SeekEnd:
		abs = r.size + offset
	default:
		return 0, fmt.Errorf("seek %s: invalid whence %d", r.key, whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("seek %s: negative position %d", r.key, abs)
	}

	if abs != r.pos {
		r.discard()
		r.pos = abs
	}
	return abs, nil
}

func (r *seekReader) Close() error {
	defer func() { r.body = nil }()
	if r.body != nil {
		return r.body.Close()
	}
	return nil
}

func (r *seekReader) discard() {
	if r.body != nil {
		_ = r.body.Close()
		r.body = nil
	}
}
