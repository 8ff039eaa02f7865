// Package s3fs adapts an S3 bucket (or any S3-compatible store) to the
// remote item model. Keys map to files; "/"-delimited prefixes map to
// directories.
package s3fs

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/driftsync/drift/internal/remote"
)

const presignTTL = 15 * time.Minute

// Options configures access to a bucket.
type Options struct {
	Bucket    string
	Region    string
	Endpoint  string // custom endpoint for S3-compatible stores
	PathStyle bool   // required by most non-AWS endpoints
}

// FS resolves remote items inside one bucket.
type FS struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// New builds an FS using the ambient AWS credential chain.
func New(ctx context.Context, opts Options) (*FS, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3fs: bucket is required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})

	return &FS{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  opts.Bucket,
	}, nil
}

// Resolve maps a "/"-separated remote path to an Item. An exact key is a
// file; a key with children under "<key>/" is a directory; the empty
// path is the bucket root.
func (fs *FS) Resolve(ctx context.Context, remotePath string) (remote.Item, error) {
	key := strings.Trim(remotePath, "/")
	if key == "" {
		return &prefixItem{fs: fs, name: fs.bucket, prefix: ""}, nil
	}

	head, err := fs.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(fs.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return &objectItem{fs: fs, key: key, name: path.Base(key), size: aws.ToInt64(head.ContentLength)}, nil
	}

	// Not an object; probe for a directory-like prefix.
	list, err := fs.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(fs.bucket),
		Prefix:  aws.String(key + "/"),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", remotePath, err)
	}
	if aws.ToInt32(list.KeyCount) == 0 {
		return nil, fmt.Errorf("resolve %s: %w", remotePath, remote.ErrNotFound)
	}
	return &prefixItem{fs: fs, name: path.Base(key), prefix: key + "/"}, nil
}

// objectItem is a single S3 object exposed as a remote.File.
type objectItem struct {
	fs   *FS
	key  string
	name string
	size int64
}

func (o *objectItem) Name() string { return o.name }
func (o *objectItem) Size() int64  { return o.size }

// Open presigns a GetObject URL for range fetches and wraps the object
// in a re-opening seekable reader for the diff scan.
func (o *objectItem) Open(ctx context.Context) (*remote.Response, error) {
	signed, err := o.fs.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.fs.bucket),
		Key:    aws.String(o.key),
	}, s3.WithPresignExpires(presignTTL))
	if err != nil {
		return nil, fmt.Errorf("presign %s: %w", o.key, err)
	}

	return &remote.Response{
		Size: o.size,
		URL:  signed.URL,
		Body: newSeekReader(ctx, o.fs.client, o.fs.bucket, o.key, o.size),
	}, nil
}

// prefixItem is a "/"-delimited key prefix exposed as a remote.Dir.
type prefixItem struct {
	fs     *FS
	name   string
	prefix string // "" for bucket root, otherwise ends with "/"
}

func (p *prefixItem) Name() string { return p.name }

func (p *prefixItem) Children(ctx context.Context) ([]remote.Item, error) {
	var items []remote.Item

	paginator := s3.NewListObjectsV2Paginator(p.fs.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(p.fs.bucket),
		Prefix:    aws.String(p.prefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", p.prefix, err)
		}

		for _, cp := range page.CommonPrefixes {
			sub := aws.ToString(cp.Prefix)
			items = append(items, &prefixItem{
				fs:     p.fs,
				name:   path.Base(strings.TrimSuffix(sub, "/")),
				prefix: sub,
			})
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == p.prefix {
				continue // the directory marker object, if any
			}
			items = append(items, &objectItem{
				fs:   p.fs,
				key:  key,
				name: path.Base(key),
				size: aws.ToInt64(obj.Size),
			})
		}
	}
	return items, nil
}
