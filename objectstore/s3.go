// Package objectstore is the PDF/artifact blob storage adapter: an
// aws-sdk-go-v2 S3 client pointed at Supabase Storage's S3-compatible
// endpoint, grounded on
// original_source/backend/app/services/storage/supabase_storage.py's
// upload/signed-URL contract, re-expressed against the S3 API Supabase
// Storage actually exposes rather than the Python Supabase client SDK.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/levelforge/guideforge/apperr"
)

// Config points the S3 client at a Supabase Storage project and bucket.
type Config struct {
	Endpoint        string // e.g. https://<project>.supabase.co/storage/v1/s3
	Region          string // Supabase S3 gateway accepts any region string; "us-east-1" is the documented default
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

// Store implements executor.ObjectStore plus the signed-URL download path
// the HTTP ingress needs, backed by S3's PutObject/GetObject and the
// presign client for GetObject.
type Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

func New(cfg Config) *Store {
	client := s3.New(s3.Options{
		Region:       cfg.Region,
		BaseEndpoint: aws.String(cfg.Endpoint),
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		UsePathStyle: true,
	})
	return &Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
	}
}

// Upload writes content to path under the configured bucket, mirroring
// supabase_storage.py's upload_private_pdf/upload for arbitrary content
// types (PDF uploads, derived-text artifacts).
func (s *Store) Upload(ctx context.Context, path string, content []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return apperr.NewStorage(fmt.Sprintf("upload object %s", path), err)
	}
	return nil
}

// UploadText is the narrow ObjectStore port method the executor phases
// call for the PDF_TEXT artifact body.
func (s *Store) UploadText(ctx context.Context, path string, text string) error {
	return s.Upload(ctx, path, []byte(text), "text/plain; charset=utf-8")
}

// Download fetches path's full contents from the bucket.
func (s *Store) Download(ctx context.Context, path string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, apperr.NewStorage(fmt.Sprintf("download object %s", path), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, apperr.NewStorage(fmt.Sprintf("read object body %s", path), err)
	}
	return data, nil
}

// SignedURL mirrors supabase_storage.py's create_signed_download_url:
// a time-limited pre-signed GetObject URL for a private object.
func (s *Store) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", apperr.NewStorage(fmt.Sprintf("presign object %s", path), err)
	}
	return req.URL, nil
}
