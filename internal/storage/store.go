// Package storage wraps the S3 client used for staged writes, multipart part
// uploads and anonymous reads of public trust material.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/common"
	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// API is the part of *s3.Client the store needs.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Progress receives the fraction of a body sent so far, in [0, 1].
type Progress func(fraction float64)

type Store struct {
	api API
}

func NewWithAPI(api API) *Store {
	return &Store{api: api}
}

// New builds a store for region authorized by provider. A non-empty endpoint
// points the client at an S3-compatible service using path-style addressing.
func New(ctx context.Context, region, endpoint string, provider aws.CredentialsProvider) (*Store, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(provider),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: aws config: %v", common.ErrLogicInvariant, err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return NewWithAPI(client), nil
}

// NewAnonymous builds a store that sends unsigned requests, for public objects.
func NewAnonymous(ctx context.Context, region, endpoint string) (*Store, error) {
	return New(ctx, region, endpoint, aws.AnonymousCredentials{})
}

// unsignedPayload skips hashing the body before signing; staged bodies can be
// several MiB and are already protected by the envelope.
var unsignedPayload = s3.WithAPIOptions(v4.SwapComputePayloadSHA256ForUnsignedPayloadMiddleware)

// signedBy pins the credentials a single request is signed with. Staging keys
// embed the identity the credentials were issued to, so a write must never be
// signed by a newer identity than the one in its key. Zero credentials keep
// the client's provider.
func signedBy(creds aws.Credentials) func(*s3.Options) {
	return func(o *s3.Options) {
		if creds.HasKeys() {
			o.Credentials = credentials.StaticCredentialsProvider{Value: creds}
		}
	}
}

// Put writes body to bucket/key, signed with creds.
func (s *Store) Put(ctx context.Context, creds aws.Credentials, bucket, key string, body []byte, progress Progress) error {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          newProgressReader(body, progress),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/octet-stream"),
	}, unsignedPayload, signedBy(creds))
	if err != nil {
		return classify("put "+key, err)
	}
	return nil
}

// CreateMultipart starts a multipart transfer and returns its upload id.
func (s *Store) CreateMultipart(ctx context.Context, creds aws.Credentials, bucket, key string) (string, error) {
	out, err := s.api.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		ContentType: aws.String("application/octet-stream"),
	}, signedBy(creds))
	if err != nil {
		return "", classify("create multipart "+key, err)
	}
	if out.UploadId == nil || *out.UploadId == "" {
		return "", fmt.Errorf("%w: create multipart %s: no upload id", common.ErrServerRejected, key)
	}
	return *out.UploadId, nil
}

// UploadPart sends one part (partNumber is 1-based) and returns its ETag.
func (s *Store) UploadPart(ctx context.Context, creds aws.Credentials, bucket, key, uploadID string, partNumber int32, body []byte, progress Progress) (string, error) {
	out, err := s.api.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(partNumber),
		Body:          newProgressReader(body, progress),
		ContentLength: aws.Int64(int64(len(body))),
	}, unsignedPayload, signedBy(creds))
	if err != nil {
		return "", classify(fmt.Sprintf("upload part %d of %s", partNumber, key), err)
	}
	if out.ETag == nil || *out.ETag == "" {
		return "", fmt.Errorf("%w: upload part %d: no etag", common.ErrServerRejected, partNumber)
	}
	return *out.ETag, nil
}

// Get reads a whole object.
func (s *Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify("get "+key, err)
	}
	defer out.Body.Close()

	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", common.ErrTransientNetwork, key, err)
	}
	return b, nil
}

// classify maps SDK errors onto the common taxonomy.
func classify(op string, err error) error {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return fmt.Errorf("%w: %s", common.ErrNotFound, op)
	}

	var status interface{ HTTPStatusCode() int }
	if errors.As(err, &status) {
		switch code := status.HTTPStatusCode(); {
		case code == http.StatusNotFound:
			return fmt.Errorf("%w: %s", common.ErrNotFound, op)
		case code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s: %v", common.ErrTransientNetwork, op, err)
		case code > 0:
			return fmt.Errorf("%w: %s: %v", common.ErrServerRejected, op, err)
		}
	}
	return fmt.Errorf("%w: %s: %v", common.ErrTransientNetwork, op, err)
}

// progressReader reports read progress over an in-memory body. Seeking back
// (an SDK retry) rewinds the reported progress too.
type progressReader struct {
	r        *bytes.Reader
	size     int64
	progress Progress
}

func newProgressReader(body []byte, progress Progress) io.ReadSeeker {
	if progress == nil {
		return bytes.NewReader(body)
	}
	return &progressReader{r: bytes.NewReader(body), size: int64(len(body)), progress: progress}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.report()
	}
	return n, err
}

func (p *progressReader) Seek(offset int64, whence int) (int64, error) {
	pos, err := p.r.Seek(offset, whence)
	if err == nil {
		p.report()
	}
	return pos, err
}

func (p *progressReader) report() {
	if p.size == 0 {
		p.progress(1)
		return
	}
	sent := p.size - int64(p.r.Len())
	p.progress(float64(sent) / float64(p.size))
}
