// Package archive exports completed summary versions to object storage.
// Archiving is best effort: the pipeline never fails because an upload did.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// VersionDocument is the JSON payload archived per completed version.
type VersionDocument struct {
	VideoPath             string    `json:"video_path"`
	Version               int       `json:"version"`
	Summary               string    `json:"summary"`
	Transcript            string    `json:"transcript"`
	ModelUsed             string    `json:"model_used"`
	ProcessingTimeSeconds float64   `json:"processing_time_seconds"`
	GeneratedAt           time.Time `json:"generated_at"`
}

// Archive stores version documents durably outside the database.
type Archive interface {
	// StoreVersion uploads one version document. keyBase is a
	// filesystem-safe name derived from the video basename.
	StoreVersion(ctx context.Context, keyBase string, doc VersionDocument) error
	// Enabled reports whether uploads actually happen.
	Enabled() bool
}

// Disabled is the no-op archive used when no bucket is configured.
type Disabled struct{}

func (Disabled) StoreVersion(context.Context, string, VersionDocument) error { return nil }
func (Disabled) Enabled() bool                                              { return false }

// Config holds S3 archive settings.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for S3-compatible endpoints
	AccessKeyID     string
	SecretAccessKey string
}

// S3Archive uploads version documents to an S3 bucket under
// summaries/<keyBase>/v<N>.json.
type S3Archive struct {
	client *s3.Client
	bucket string
	logger *slog.Logger
}

var _ Archive = (*S3Archive)(nil)
var _ Archive = Disabled{}

// NewS3Archive builds an S3-backed archive from the given settings.
func NewS3Archive(cfg Config, logger *slog.Logger) (*S3Archive, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var configOpts []func(*awsconfig.LoadOptions) error
	configOpts = append(configOpts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), configOpts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Archive{
		client: s3.NewFromConfig(awsCfg, clientOpts...),
		bucket: cfg.Bucket,
		logger: logger,
	}, nil
}

// Enabled always returns true for a constructed S3Archive.
func (a *S3Archive) Enabled() bool { return true }

// StoreVersion uploads doc as a JSON object.
func (a *S3Archive) StoreVersion(ctx context.Context, keyBase string, doc VersionDocument) error {
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("archive: marshal version document: %w", err)
	}

	key := fmt.Sprintf("summaries/%s/v%d.json", keyBase, doc.Version)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: upload %s: %w", key, err)
	}

	a.logger.Info("archived summary version",
		slog.String("key", key),
		slog.Int("version", doc.Version),
	)
	return nil
}
