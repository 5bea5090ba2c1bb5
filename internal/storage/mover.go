// Package storage moves uploaded objects from the upload bucket into
// per-submission folders of the submission bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// LocationScheme prefixes every folder URI written back to the sheet.
const LocationScheme = "s3://"

// ObjectAPI is the part of *s3.Client the mover uses.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Moved describes one completed move.
type Moved struct {
	SourceKey string
	DestKey   string
	// Recovered is set when the source was already gone and the object was
	// found at its destination from an earlier run.
	Recovered bool
}

type Mover struct {
	api          ObjectAPI
	sourceBucket string
	destBucket   string
}

func NewMover(api ObjectAPI, sourceBucket, destBucket string) *Mover {
	return &Mover{
		api:          api,
		sourceBucket: sourceBucket,
		destBucket:   destBucket,
	}
}

func (m *Mover) DestBucket() string {
	return m.destBucket
}

// Location is the URI written into the sheet for a migrated folder.
func (m *Mover) Location(folder string) string {
	return LocationScheme + m.destBucket + "/" + folder
}

// DestKey is where key lands inside folder.
func DestKey(folder, key string) string {
	return folder + "/" + key
}

// EnsureFolder writes the empty "<folder>/" marker. Writing it twice is harmless.
func (m *Mover) EnsureFolder(ctx context.Context, folder string) error {
	marker := strings.TrimSuffix(folder, "/") + "/"
	_, err := m.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(m.destBucket),
		Key:    aws.String(marker),
		Body:   strings.NewReader(""),
	})
	if err != nil {
		return newError("PutObject", m.destBucket, marker, err)
	}
	return nil
}

// Move copies key into folder on the destination bucket, then deletes the
// source object. A failed delete leaves both copies in place.
func (m *Mover) Move(ctx context.Context, folder, key string) (Moved, error) {
	moved := Moved{SourceKey: key, DestKey: DestKey(folder, key)}

	_, err := m.api.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(m.destBucket),
		Key:        aws.String(moved.DestKey),
		CopySource: aws.String(m.copySource(key)),
	})
	if err != nil {
		copyErr := newError("CopyObject", m.sourceBucket, key, err)
		// Without s3:ListBucket a missing source key comes back as AccessDenied.
		if !errors.Is(copyErr, ErrObjectNotFound) && !errors.Is(copyErr, ErrAccessDenied) {
			return moved, copyErr
		}
		present, headErr := m.destExists(ctx, moved.DestKey)
		if headErr != nil || !present {
			return moved, copyErr
		}
		moved.Recovered = true
		return moved, nil
	}

	_, err = m.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(m.sourceBucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return moved, newError("DeleteObject", m.sourceBucket, key, err)
	}
	return moved, nil
}

func (m *Mover) destExists(ctx context.Context, key string) (bool, error) {
	_, err := m.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(m.destBucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	headErr := newError("HeadObject", m.destBucket, key, err)
	if errors.Is(headErr, ErrObjectNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("check destination: %w", headErr)
}

// copySource escapes each path segment of the key; S3 expects the
// x-amz-copy-source header URL-encoded.
func (m *Mover) copySource(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return m.sourceBucket + "/" + strings.Join(parts, "/")
}
