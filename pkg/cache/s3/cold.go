// Package s3 is a cold store on S3-compatible object storage. The bucket
// lifecycle rule performs storage-class transitions and deletion.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ffneuron/neuron/pkg/cache"
	"github.com/ffneuron/neuron/pkg/models"
	"github.com/ffneuron/neuron/pkg/voicekey"
)

// Config selects the bucket and credentials.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string // non-AWS endpoints, e.g. storage.googleapis.com or MinIO
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	TransitionClass string // reduced-cost class used after the nearline age
}

// Metadata header names (x-amz-meta-*).
const (
	metaProvider   = "provider"
	metaVoiceID    = "voice-id"
	metaTier       = "tier"
	metaDurationMs = "duration-ms"
	metaCost       = "cost"
	metaCreatedAt  = "created-at"
)

// lifecycleRuleID names the rule installed by EnsureLifecycle.
const lifecycleRuleID = "neuron-voice-lifecycle"

// Cold stores artifacts as objects under {prefix}/{key path}.
type Cold struct {
	cfg      Config
	client   *s3.Client
	uploader *manager.Uploader
	now      func() time.Time
	hits     atomic.Int64
	misses   atomic.Int64
}

// New builds an S3 client. Static keys are used when set, otherwise the
// default AWS credential chain.
func New(ctx context.Context, cfg Config) (*Cold, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 cold store: bucket is required")
	}
	if cfg.TransitionClass == "" {
		cfg.TransitionClass = string(types.TransitionStorageClassGlacierIr)
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Cold{
		cfg:      cfg,
		client:   client,
		uploader: manager.NewUploader(client),
		now:      time.Now,
	}, nil
}

func (c *Cold) objectKey(path string) string {
	return objectKey(c.cfg.Prefix, path)
}

func objectKey(prefix, path string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return path
	}
	return prefix + "/" + path
}

// Get retrieves the artifact for key.
func (c *Cold) Get(ctx context.Context, key voicekey.Key) (*models.AudioArtifact, error) {
	return c.GetPath(ctx, key.Path())
}

// GetPath retrieves an artifact by object path.
func (c *Cold) GetPath(ctx context.Context, path string) (*models.AudioArtifact, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(c.objectKey(path)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			c.misses.Add(1)
			return nil, cache.ErrMiss
		}
		return nil, fmt.Errorf("s3 get %s: %w", path, err)
	}
	defer out.Body.Close()

	audio, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read %s: %w", path, err)
	}

	a := decodeMetadata(out.Metadata)
	a.Audio = audio
	a.MimeType = aws.ToString(out.ContentType)
	if a.CreatedAt.IsZero() && out.LastModified != nil {
		a.CreatedAt = out.LastModified.UTC()
	}
	if _, expired := models.ClassForAge(c.now().Sub(a.CreatedAt)); expired {
		c.misses.Add(1)
		return nil, cache.ErrMiss
	}

	c.hits.Add(1)
	return a, nil
}

// Put uploads the artifact unless a live object already exists at its path.
func (c *Cold) Put(ctx context.Context, key voicekey.Key, a *models.AudioArtifact) error {
	objKey := c.objectKey(key.Path())

	head, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(objKey),
	})
	if err == nil {
		created := decodeMetadata(head.Metadata).CreatedAt
		if created.IsZero() && head.LastModified != nil {
			created = *head.LastModified
		}
		if _, expired := models.ClassForAge(c.now().Sub(created)); !expired {
			return nil
		}
	} else {
		var nf *types.NotFound
		if !errors.As(err, &nf) {
			return fmt.Errorf("s3 head %s: %w", objKey, err)
		}
	}

	if a.CreatedAt.IsZero() {
		a.CreatedAt = c.now()
	}
	_, err = c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(c.cfg.Bucket),
		Key:          aws.String(objKey),
		Body:         bytes.NewReader(a.Audio),
		ContentType:  aws.String(a.MimeType),
		StorageClass: types.StorageClassStandard,
		Metadata:     encodeMetadata(a),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", objKey, err)
	}
	return nil
}

// EnsureLifecycle installs the bucket rule that moves objects to the
// transition class after the nearline age and deletes them after the
// deletion age.
func (c *Cold) EnsureLifecycle(ctx context.Context) error {
	_, err := c.client.PutBucketLifecycleConfiguration(ctx, &s3.PutBucketLifecycleConfigurationInput{
		Bucket:                 aws.String(c.cfg.Bucket),
		LifecycleConfiguration: lifecycleConfiguration(c.cfg.Prefix, c.cfg.TransitionClass),
	})
	if err != nil {
		return fmt.Errorf("put bucket lifecycle: %w", err)
	}
	return nil
}

func lifecycleConfiguration(prefix, transitionClass string) *types.BucketLifecycleConfiguration {
	filterPrefix := strings.Trim(prefix, "/")
	if filterPrefix != "" {
		filterPrefix += "/"
	}
	return &types.BucketLifecycleConfiguration{
		Rules: []types.LifecycleRule{{
			ID:     aws.String(lifecycleRuleID),
			Status: types.ExpirationStatusEnabled,
			Filter: &types.LifecycleRuleFilter{Prefix: aws.String(filterPrefix)},
			Transitions: []types.Transition{{
				Days:         aws.Int32(int32(models.NearlineAfter / (24 * time.Hour))),
				StorageClass: types.TransitionStorageClass(transitionClass),
			}},
			Expiration: &types.LifecycleExpiration{
				Days: aws.Int32(int32(models.DeleteAfter / (24 * time.Hour))),
			},
		}},
	}
}

// Stats reports local hit/miss counters. Object counts would require a full
// bucket listing and are left to the provider's console.
func (c *Cold) Stats(context.Context) (models.CacheStats, error) {
	return models.CacheStats{
		Backend: "s3",
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}, nil
}

// Close is a no-op; the SDK client holds no resources that need release.
func (c *Cold) Close() error { return nil }

func encodeMetadata(a *models.AudioArtifact) map[string]string {
	return map[string]string{
		metaProvider:   string(a.Provider),
		metaVoiceID:    a.VoiceID,
		metaTier:       string(a.Tier),
		metaDurationMs: strconv.FormatInt(a.DurationMs, 10),
		metaCost:       strconv.FormatFloat(a.Cost, 'f', -1, 64),
		metaCreatedAt:  a.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// decodeMetadata tolerates missing or malformed headers; S3 lowercases keys.
func decodeMetadata(md map[string]string) *models.AudioArtifact {
	get := func(k string) string {
		if v, ok := md[k]; ok {
			return v
		}
		for mk, v := range md {
			if strings.EqualFold(mk, k) {
				return v
			}
		}
		return ""
	}
	a := &models.AudioArtifact{
		Provider: models.Provider(get(metaProvider)),
		VoiceID:  get(metaVoiceID),
		Tier:     models.VoiceTier(get(metaTier)),
	}
	a.DurationMs, _ = strconv.ParseInt(get(metaDurationMs), 10, 64)
	a.Cost, _ = strconv.ParseFloat(get(metaCost), 64)
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, get(metaCreatedAt))
	return a
}
