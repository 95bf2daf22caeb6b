// Package objstore wraps the S3 API used by the ingestion pipeline:
// listing objects under a prefix, fetching object bytes, and reading
// object metadata. The source bucket is requester-pays, so every call
// carries the request-payer acknowledgement when configured.
package objstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ObjectInfo is the listing metadata for one source object.
type ObjectInfo struct {
	Key          string
	LastModified time.Time
	Size         int64
}

type Client struct {
	s3            *s3.Client
	bucket        string
	prefix        string
	requesterPays bool
}

// Config holds the settings for the S3 client.
type Config struct {
	Region        string
	Bucket        string
	Prefix        string
	RequesterPays bool
}

// New builds an S3 client from the default AWS credential chain.
func New(ctx context.Context, cfg Config) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Client{
		s3:            s3.NewFromConfig(awsCfg),
		bucket:        cfg.Bucket,
		prefix:        cfg.Prefix,
		requesterPays: cfg.RequesterPays,
	}, nil
}

func (c *Client) payer() types.RequestPayer {
	if c.requesterPays {
		return types.RequestPayerRequester
	}
	return ""
}

// List enumerates every object under the configured prefix. When since is
// non-nil, objects modified before it are dropped.
func (c *Client) List(ctx context.Context, since *time.Time) ([]ObjectInfo, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:       aws.String(c.bucket),
		Prefix:       aws.String(c.prefix),
		RequestPayer: c.payer(),
	}

	var objects []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(c.s3, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects under %s: %w", c.prefix, err)
		}
		for _, obj := range page.Contents {
			modified := aws.ToTime(obj.LastModified)
			if since != nil && modified.Before(*since) {
				continue
			}
			objects = append(objects, ObjectInfo{
				Key:          aws.ToString(obj.Key),
				LastModified: modified,
				Size:         aws.ToInt64(obj.Size),
			})
		}
	}
	return objects, nil
}

// Fetch downloads the full content of one object.
func (c *Client) Fetch(ctx context.Context, key string) ([]byte, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket:       aws.String(c.bucket),
		Key:          aws.String(key),
		RequestPayer: c.payer(),
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()

	content, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return content, nil
}

// Head returns listing metadata for a single object, used by the
// single-object run mode.
func (c *Client) Head(ctx context.Context, key string) (ObjectInfo, error) {
	out, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket:       aws.String(c.bucket),
		Key:          aws.String(key),
		RequestPayer: c.payer(),
	})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("head object %s: %w", key, err)
	}
	return ObjectInfo{
		Key:          key,
		LastModified: aws.ToTime(out.LastModified),
		Size:         aws.ToInt64(out.ContentLength),
	}, nil
}
