package storage

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// Sentinels for the S3 failures the migrator treats differently.
var (
	ErrObjectNotFound = errors.New("s3: object not found")
	ErrBucketNotFound = errors.New("s3: bucket not found")
	ErrAccessDenied   = errors.New("s3: access denied")

	// ErrInvalidCredentials means no request can succeed with the current
	// credentials, unlike ErrAccessDenied which S3 returns per object.
	ErrInvalidCredentials = errors.New("s3: invalid credentials")
)

// Error carries the operation and object that failed.
type Error struct {
	Op     string
	Bucket string
	Key    string
	Err    error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("s3.%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	return fmt.Sprintf("s3.%s bucket %s: %v", e.Op, e.Bucket, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, bucket, key string, err error) *Error {
	if sentinel := classify(err); sentinel != nil {
		err = fmt.Errorf("%w: %w", sentinel, err)
	}
	return &Error{Op: op, Bucket: bucket, Key: key, Err: err}
}

func classify(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return nil
	}
	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NotFound":
		return ErrObjectNotFound
	case "NoSuchBucket":
		return ErrBucketNotFound
	case "AccessDenied", "AllAccessDisabled":
		return ErrAccessDenied
	case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "InvalidToken":
		return ErrInvalidCredentials
	default:
		return nil
	}
}
