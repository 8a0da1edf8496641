package dataset

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const reportPrefix = "reports/"

// ReportArchive keeps a copy of every exported report in object storage.
type ReportArchive interface {
	Save(ctx context.Context, filename string, data []byte) (objectKey string, checksum string, err error)
	Bucket() string
}

type minioArchive struct {
	client     *minio.Client
	bucketName string
}

func hashSHA256(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

func NewMinioArchive(endpoint, accessKey, secretKey string, useSSL bool, bucket string) (ReportArchive, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, errBucket := client.BucketExists(ctx, bucket)
	if errBucket != nil {
		return nil, errBucket
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}

	return &minioArchive{
		client:     client,
		bucketName: bucket,
	}, nil
}

func (s *minioArchive) Save(ctx context.Context, filename string, data []byte) (string, string, error) {
	objectKey := fmt.Sprintf("%s%s.csv", reportPrefix, uuid.New().String())
	checksum := hashSHA256(data)

	_, err := s.client.PutObject(ctx, s.bucketName, objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "text/csv",
		UserMetadata: map[string]string{
			"filename": filename,
			"checksum": checksum,
		},
	})
	if err != nil {
		return "", "", err
	}

	return objectKey, checksum, nil
}

func (s *minioArchive) Bucket() string {
	return s.bucketName
}
