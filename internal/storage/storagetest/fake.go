// Package storagetest provides an in-memory S3 double for tests.
package storagetest

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// Call records one API call in order.
type Call struct {
	Op     string
	Bucket string
	Key    string
}

// FakeS3 keeps objects per bucket in memory. Fail hooks run before the
// operation and may return an error to inject.
type FakeS3 struct {
	mu      sync.Mutex
	objects map[string]map[string][]byte
	Calls   []Call

	FailPut    func(bucket, key string) error
	FailCopy   func(bucket, key string) error
	FailDelete func(bucket, key string) error
}

func NewFakeS3() *FakeS3 {
	return &FakeS3{objects: map[string]map[string][]byte{}}
}

// Seed creates bucket and stores keys in it.
func (f *FakeS3) Seed(bucket string, keys ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects[bucket] == nil {
		f.objects[bucket] = map[string][]byte{}
	}
	for _, k := range keys {
		f.put(bucket, k, []byte("content of "+k))
	}
}

func (f *FakeS3) Has(bucket, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[bucket][key]
	return ok
}

// Keys returns every key in bucket.
func (f *FakeS3) Keys(bucket string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects[bucket]))
	for k := range f.objects[bucket] {
		keys = append(keys, k)
	}
	return keys
}

// CallCount returns how many calls of op were made.
func (f *FakeS3) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (f *FakeS3) put(bucket, key string, body []byte) {
	if f.objects[bucket] == nil {
		f.objects[bucket] = map[string][]byte{}
	}
	f.objects[bucket][key] = body
}

func (f *FakeS3) record(op, bucket, key string) {
	f.Calls = append(f.Calls, Call{Op: op, Bucket: bucket, Key: key})
}

func (f *FakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket, key := aws.ToString(in.Bucket), aws.ToString(in.Key)
	f.record("PutObject", bucket, key)
	if f.FailPut != nil {
		if err := f.FailPut(bucket, key); err != nil {
			return nil, err
		}
	}
	var body []byte
	if in.Body != nil {
		b, err := io.ReadAll(in.Body)
		if err != nil {
			return nil, err
		}
		body = b
	}
	f.put(bucket, key, body)
	return &s3.PutObjectOutput{}, nil
}

func (f *FakeS3) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket, key := aws.ToString(in.Bucket), aws.ToString(in.Key)
	f.record("CopyObject", bucket, key)

	srcBucket, srcKey, ok := strings.Cut(aws.ToString(in.CopySource), "/")
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "InvalidArgument", Message: "bad copy source"}
	}
	if unescaped, err := url.PathUnescape(srcKey); err == nil {
		srcKey = unescaped
	}
	if f.FailCopy != nil {
		if err := f.FailCopy(srcBucket, srcKey); err != nil {
			return nil, err
		}
	}
	if _, exists := f.objects[srcBucket]; !exists {
		return nil, &smithy.GenericAPIError{Code: "NoSuchBucket", Message: srcBucket}
	}
	body, exists := f.objects[srcBucket][srcKey]
	if !exists {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: fmt.Sprintf("%s/%s", srcBucket, srcKey)}
	}
	f.put(bucket, key, body)
	return &s3.CopyObjectOutput{}, nil
}

func (f *FakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket, key := aws.ToString(in.Bucket), aws.ToString(in.Key)
	f.record("DeleteObject", bucket, key)
	if f.FailDelete != nil {
		if err := f.FailDelete(bucket, key); err != nil {
			return nil, err
		}
	}
	delete(f.objects[bucket], key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *FakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket, key := aws.ToString(in.Bucket), aws.ToString(in.Key)
	f.record("HeadObject", bucket, key)
	body, ok := f.objects[bucket][key]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NotFound", Message: "Not Found"}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(body)))}, nil
}
