// Package s3 stages transfer files in S3 or any S3-compatible object
// store.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/okuraya/dataglue"
)

const uploadParallelism = 4

// NewClient builds an S3 client with static credentials. endpoint may
// be empty for AWS itself; self-hosted stores get their endpoint here,
// which is also why requests use path-style addressing.
func NewClient(region, endpoint, keyID, secret string) *awss3.Client {
	opts := awss3.Options{
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(keyID, secret, ""),
		UsePathStyle: true,
	}
	if endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
	}
	return awss3.New(opts)
}

// Bucket wraps one bucket of a caller-owned S3 client.
type Bucket struct {
	name   string
	client *awss3.Client
}

// NewBucket returns a Bucket named name on client. The caller keeps
// ownership of the client.
func NewBucket(client *awss3.Client, name string) *Bucket {
	return &Bucket{name: name, client: client}
}

// Name returns the bucket name.
func (b *Bucket) Name() string { return b.name }

// URI returns the s3:// address of a key in this bucket.
func (b *Bucket) URI(key string) string {
	return fmt.Sprintf("s3://%s/%s", b.name, key)
}

// Put stores r as key and returns its URI. Request signing needs a
// seekable body, so a plain stream is buffered in memory first; prefer
// Upload for large files.
func (b *Bucket) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	body, ok := r.(io.ReadSeeker)
	if !ok {
		buf, err := io.ReadAll(r)
		if err != nil {
			return "", &dataglue.IOError{Op: "read", Err: err}
		}
		body = bytes.NewReader(buf)
	}

	_, err := b.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return "", &dataglue.IOError{Op: "s3.put", Path: b.URI(key), Err: err}
	}
	log.Ctx(ctx).Debug().Msgf("staged %s", b.URI(key))
	return b.URI(key), nil
}

// Upload copies a local file into a key and returns its URI.
func (b *Bucket) Upload(ctx context.Context, path, key string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &dataglue.IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()
	return b.Put(ctx, key, f)
}

// UploadAll uploads every file as prefix plus the file's base name, a
// few at a time. URIs come back in the order of paths.
func (b *Bucket) UploadAll(ctx context.Context, paths []string, prefix string) ([]string, error) {
	uris := make([]string, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadParallelism)
	for i, p := range paths {
		g.Go(func() error {
			uri, err := b.Upload(ctx, p, prefix+filepath.Base(p))
			if err != nil {
				return err
			}
			uris[i] = uri
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return uris, nil
}

// Download copies a key to a local file. A partial file left by a
// failed download is removed.
func (b *Bucket) Download(ctx context.Context, key, path string) error {
	out, err := b.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	if err != nil {
		return &dataglue.IOError{Op: "s3.get", Path: b.URI(key), Err: err}
	}
	defer out.Body.Close()

	f, err := os.Create(path)
	if err != nil {
		return &dataglue.IOError{Op: "create", Path: path, Err: err}
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		f.Close()
		os.Remove(path)
		return &dataglue.IOError{Op: "s3.get", Path: b.URI(key), Err: err}
	}
	if err := f.Close(); err != nil {
		return &dataglue.IOError{Op: "close", Path: path, Err: err}
	}
	return nil
}

// DownloadAll downloads every key under prefix into dir, flattening
// key names to their base names. Paths come back in the bucket's
// lexicographic listing order.
func (b *Bucket) DownloadAll(ctx context.Context, prefix, dir string) ([]string, error) {
	keys, err := b.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(keys))
	for _, k := range keys {
		dst := filepath.Join(dir, path.Base(k))
		if err := b.Download(ctx, k, dst); err != nil {
			return nil, err
		}
		paths = append(paths, dst)
	}
	return paths, nil
}

// Merge concatenates every key under prefix into w, in lexicographic
// order.
func (b *Bucket) Merge(ctx context.Context, prefix string, w io.Writer) error {
	keys, err := b.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := b.appendObject(ctx, k, w); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bucket) appendObject(ctx context.Context, key string, w io.Writer) error {
	out, err := b.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	if err != nil {
		return &dataglue.IOError{Op: "s3.get", Path: b.URI(key), Err: err}
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return &dataglue.IOError{Op: "s3.get", Path: b.URI(key), Err: err}
	}
	return nil
}

// List returns every key under prefix, following continuation tokens.
// The service lists keys in lexicographic order.
func (b *Bucket) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	var token *string
	for {
		out, err := b.client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
			Bucket:            aws.String(b.name),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, &dataglue.IOError{Op: "s3.list", Path: b.URI(prefix), Err: err}
		}
		for _, o := range out.Contents {
			names = append(names, aws.ToString(o.Key))
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}
	return names, nil
}

// Remove deletes every key under prefix, attempting all of them before
// reporting the first error.
func (b *Bucket) Remove(ctx context.Context, prefix string) error {
	keys, err := b.List(ctx, prefix)
	if err != nil {
		return err
	}

	var first error
	for _, k := range keys {
		_, err := b.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
			Bucket: aws.String(b.name),
			Key:    aws.String(k),
		})
		if err != nil && first == nil {
			first = &dataglue.IOError{Op: "s3.delete", Path: b.URI(k), Err: err}
		}
	}
	log.Ctx(ctx).Debug().Msgf("removed %d objects under %s", len(keys), b.URI(prefix))
	return first
}
