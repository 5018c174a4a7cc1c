// Package bundlestore is the BundleStore/TableDataStore boundary: the
// content-addressed object store that holds function bundles and
// table-data-version payloads. Core never touches an object's bytes —
// Registry records a Bundle.URI and the Dispatcher hands a
// TableDataVersion's URI to a worker — so this package's job is
// narrow: turn (collection, hash) into a stored object and back into
// a URI, the same separation the teacher's storage package draws
// between S3Client (the wire call) and the upload/sync orchestration
// built on top of it.
package bundlestore

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Client is the subset of *s3.Client this package calls, lifted
// from the teacher's storage.S3Client so both a real client and a
// mock satisfy it without re-declaring every AWS SDK method.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}
