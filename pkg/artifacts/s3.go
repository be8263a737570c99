package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Vault stores export blobs in an S3 bucket, hash-addressed under an
// optional key prefix.
type S3Vault struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3Config configures an S3Vault. Endpoint overrides the AWS endpoint for
// MinIO or LocalStack deployments.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string
	Prefix   string
}

// NewS3Vault creates an S3-backed vault.
func NewS3Vault(ctx context.Context, cfg S3Config) (*S3Vault, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Vault{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (v *S3Vault) key(raw string) string { return v.prefix + raw + ".blob" }

func (v *S3Vault) Put(ctx context.Context, data []byte) (string, error) {
	ref := Ref(data)
	key := v.key(ref[len(refPrefix):])

	_, err := v.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return ref, nil
	}

	_, err = v.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(v.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put: %w", err)
	}
	return ref, nil
}

func (v *S3Vault) Get(ctx context.Context, ref string) ([]byte, error) {
	raw, err := parseRef(ref)
	if err != nil {
		return nil, err
	}
	out, err := v.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key(raw)),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s: %w", ref, err)
	}
	defer func() { _ = out.Body.Close() }()
	return io.ReadAll(out.Body)
}

func (v *S3Vault) Exists(ctx context.Context, ref string) (bool, error) {
	raw, err := parseRef(ref)
	if err != nil {
		return false, err
	}
	_, err = v.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key(raw)),
	})
	return err == nil, nil
}

func (v *S3Vault) Delete(ctx context.Context, ref string) error {
	raw, err := parseRef(ref)
	if err != nil {
		return err
	}
	_, err = v.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key(raw)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", ref, err)
	}
	return nil
}
