// Package report publishes what a migration run did: a Parquet manifest of
// every attempted object in the submission bucket, and an SNS summary.
package report

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/ase-101/hackathon/internal/migrate"
)

// ManifestRow is one attempted object.
type ManifestRow struct {
	RunAt     string `parquet:"name=run_at, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Row       int32  `parquet:"name=row, type=INT32"`
	Team      string `parquet:"name=team, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Folder    string `parquet:"name=folder, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	SourceKey string `parquet:"name=source_key, type=BYTE_ARRAY, convertedtype=UTF8"`
	DestKey   string `parquet:"name=dest_key, type=BYTE_ARRAY, convertedtype=UTF8"`
	Status    string `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Error     string `parquet:"name=error, type=BYTE_ARRAY, convertedtype=UTF8"`
}

type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type ManifestWriter struct {
	s3     PutObjectAPI
	bucket string
	prefix string
	now    func() time.Time
}

func NewManifestWriter(api PutObjectAPI, bucket, prefix string) *ManifestWriter {
	return &ManifestWriter{s3: api, bucket: bucket, prefix: prefix, now: time.Now}
}

// Write uploads the manifest and returns its key. Nothing is written when the
// run attempted no objects.
func (w *ManifestWriter) Write(ctx context.Context, sum migrate.Summary) (string, error) {
	if len(sum.Objects) == 0 {
		return "", nil
	}
	runAt := w.now().UTC()
	rows := Rows(runAt, sum.Objects)

	data, err := encodeParquet(rows)
	if err != nil {
		return "", err
	}

	key := ManifestKey(w.prefix, runAt, randHex(8))
	_, err = w.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		ACL:         s3types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return "", fmt.Errorf("s3 putobject %s: %w", key, err)
	}
	return key, nil
}

func Rows(runAt time.Time, objects []migrate.ObjectResult) []ManifestRow {
	stamp := runAt.UTC().Format(time.RFC3339)
	rows := make([]ManifestRow, 0, len(objects))
	for _, o := range objects {
		rows = append(rows, ManifestRow{
			RunAt:     stamp,
			Row:       int32(o.Row),
			Team:      o.Team,
			Folder:    o.Folder,
			SourceKey: o.SourceKey,
			DestKey:   o.DestKey,
			Status:    o.Status,
			Error:     o.Error,
		})
	}
	return rows
}

// ManifestKey is <prefix>/run=<UTC timestamp>/part-<suffix>.parquet.
func ManifestKey(prefix string, runAt time.Time, suffix string) string {
	key := fmt.Sprintf("run=%s/part-%s.parquet", runAt.UTC().Format("20060102T150405Z"), suffix)
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

func encodeParquet(rows []ManifestRow) ([]byte, error) {
	localPath := filepath.Join(os.TempDir(), "migration_manifest_"+randHex(8)+".parquet")
	defer func() { _ = os.Remove(localPath) }()

	fw, err := local.NewLocalFileWriter(localPath)
	if err != nil {
		return nil, fmt.Errorf("parquet file writer: %w", err)
	}

	pw, err := writer.NewParquetWriter(fw, new(ManifestRow), 1)
	if err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("parquet writer: %w", err)
	}
	pw.PageSize = 8 * 1024
	pw.CompressionType = 0 // uncompressed

	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return nil, fmt.Errorf("parquet write row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("parquet write stop: %w", err)
	}
	if err := fw.Close(); err != nil {
		return nil, fmt.Errorf("parquet close: %w", err)
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("read parquet tmp: %w", err)
	}
	return data, nil
}

func randHex(nBytes int) string {
	b := make([]byte, nBytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
