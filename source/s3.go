package source

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cockroachdb/errors"
)

// S3API is the part of the S3 client used by [S3Source].
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source serves media bytes from objects in a bucket, the key is the object key below an optional
// prefix.
type S3Source struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Source inits a byte source for bucket.
func NewS3Source(client S3API, bucket, prefix string) *S3Source {
	return &S3Source{client: client, bucket: bucket, prefix: prefix}
}

// Open implements [ByteSource].
func (s *S3Source) Open(ctx context.Context, key string) (Stream, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + key),
	})

	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return Stream{}, errors.Wrapf(ErrNotFound, "object %q", key)
	} else if err != nil {
		return Stream{}, errors.Wrapf(err, "get object %q", key)
	}

	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}

	ctype := aws.ToString(out.ContentType)
	if ctype == "" {
		ctype = defaultMIME
	}

	return Stream{Body: out.Body, MIME: ctype, Size: size}, nil
}
