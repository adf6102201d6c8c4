// Package gcs stages transfer files in Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"

	"github.com/okuraya/dataglue"
)

const uploadParallelism = 4

// Bucket wraps one bucket of a caller-owned storage client.
type Bucket struct {
	name   string
	bucket *storage.BucketHandle
}

// NewBucket returns a Bucket named name on client. The caller keeps
// ownership of the client.
func NewBucket(client *storage.Client, name string) *Bucket {
	return &Bucket{name: name, bucket: client.Bucket(name)}
}

// Name returns the bucket name.
func (b *Bucket) Name() string { return b.name }

// URI returns the gs:// address of an object in this bucket.
func (b *Bucket) URI(object string) string {
	return fmt.Sprintf("gs://%s/%s", b.name, object)
}

// Put streams r into an object and returns its URI. The write is
// atomic: the object appears only if the whole stream was stored.
func (b *Bucket) Put(ctx context.Context, object string, r io.Reader) (string, error) {
	w := b.bucket.Object(object).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return "", &dataglue.IOError{Op: "gcs.put", Path: b.URI(object), Err: err}
	}
	if err := w.Close(); err != nil {
		return "", &dataglue.IOError{Op: "gcs.put", Path: b.URI(object), Err: err}
	}
	log.Ctx(ctx).Debug().Msgf("staged %s", b.URI(object))
	return b.URI(object), nil
}

// Upload copies a local file into an object and returns its URI.
func (b *Bucket) Upload(ctx context.Context, path, object string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &dataglue.IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()
	return b.Put(ctx, object, f)
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

// Download copies an object to a local file. A partial file left by a
// failed download is removed.
func (b *Bucket) Download(ctx context.Context, object, path string) error {
	r, err := b.bucket.Object(object).NewReader(ctx)
	if err != nil {
		return &dataglue.IOError{Op: "gcs.get", Path: b.URI(object), Err: err}
	}
	defer r.Close()

	f, err := os.Create(path)
	if err != nil {
		return &dataglue.IOError{Op: "create", Path: path, Err: err}
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return &dataglue.IOError{Op: "gcs.get", Path: b.URI(object), Err: err}
	}
	if err := f.Close(); err != nil {
		return &dataglue.IOError{Op: "close", Path: path, Err: err}
	}
	return nil
}

// DownloadAll downloads every object under prefix into dir, flattening
// object names to their base names. Paths come back in the bucket's
// lexicographic listing order.
func (b *Bucket) DownloadAll(ctx context.Context, prefix, dir string) ([]string, error) {
	objects, err := b.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(objects))
	for _, o := range objects {
		dst := filepath.Join(dir, path.Base(o))
		if err := b.Download(ctx, o, dst); err != nil {
			return nil, err
		}
		paths = append(paths, dst)
	}
	return paths, nil
}

// Merge concatenates every object under prefix into w, in
// lexicographic order.
func (b *Bucket) Merge(ctx context.Context, prefix string, w io.Writer) error {
	objects, err := b.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, o := range objects {
		if err := b.appendObject(ctx, o, w); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bucket) appendObject(ctx context.Context, object string, w io.Writer) error {
	r, err := b.bucket.Object(object).NewReader(ctx)
	if err != nil {
		return &dataglue.IOError{Op: "gcs.get", Path: b.URI(object), Err: err}
	}
	defer r.Close()

	if _, err := io.Copy(w, r); err != nil {
		return &dataglue.IOError{Op: "gcs.get", Path: b.URI(object), Err: err}
	}
	return nil
}

// List returns the names of every object under prefix. The service
// lists objects in lexicographic order.
func (b *Bucket) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	it := b.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, &dataglue.IOError{Op: "gcs.list", Path: b.URI(prefix), Err: err}
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

// Remove deletes every object under prefix, attempting all of them
// before reporting the first error. Objects already gone are not an
// error.
func (b *Bucket) Remove(ctx context.Context, prefix string) error {
	objects, err := b.List(ctx, prefix)
	if err != nil {
		return err
	}

	var first error
	for _, o := range objects {
		err := b.bucket.Object(o).Delete(ctx)
		if err != nil && err != storage.ErrObjectNotExist && first == nil {
			first = &dataglue.IOError{Op: "gcs.delete", Path: b.URI(o), Err: err}
		}
	}
	log.Ctx(ctx).Debug().Msgf("removed %d objects under %s", len(objects), b.URI(prefix))
	return first
}
