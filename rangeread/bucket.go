package rangeread

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/histion/slidetile/slide"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"
)

// BucketReader reads byte ranges of objects in a gocloud.dev bucket, e.g.,
// "gs://my-bucket", "s3://my-bucket?region=us-east-1" or "file:///data/slides".
type BucketReader struct {
	ref    string
	bucket *blob.Bucket
}

// OpenBucket opens the bucket at the given URL.
func OpenBucket(ctx context.Context, bucketURL string) (*BucketReader, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("can't open bucket %q: %w", bucketURL, err)
	}
	slide.Debugf("Opened bucket %q for range reads\n", bucketURL)
	return &BucketReader{ref: bucketURL, bucket: bucket}, nil
}

// GetRange reads the inclusive byte span [start, endInclusive] of the object at key.
// A missing object is reported as a *slide.NetworkError with status 404.
func (b *BucketReader) GetRange(ctx context.Context, key string, start, endInclusive int64) ([]byte, error) {
	if start < 0 || endInclusive < start {
		return nil, fmt.Errorf("bad byte range [%d, %d] for %s", start, endInclusive, key)
	}
	timedLog := slide.NewTimeLog()
	size := endInclusive - start + 1
	r, err := b.bucket.NewRangeReader(ctx, key, start, size, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, &slide.NetworkError{URL: b.ref + "/" + key, Status: http.StatusNotFound, Err: err}
		}
		return nil, &slide.NetworkError{URL: b.ref + "/" + key, Err: err}
	}
	defer r.Close()

	buf := bytes.NewBuffer(make([]byte, 0, size))
	if _, err := io.Copy(buf, r); err != nil {
		return nil, &slide.NetworkError{URL: b.ref + "/" + key, Err: err}
	}
	timedLog.Debugf("Range read of object %q in %s, offset %d, size %d", key, b.ref, start, size)
	return buf.Bytes(), nil
}

// Close releases the bucket.
func (b *BucketReader) Close() error {
	return b.bucket.Close()
}
