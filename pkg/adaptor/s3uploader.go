// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package adaptor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/matsci/orchestrator/pkg/orcherr"
)

// S3Uploader is the default Uploader, targeting an S3-compatible endpoint
// with credentials read once from the process environment, matching the
// spec's "HTTPS endpoint with provider credentials" storage descriptor.
type S3Uploader struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3Config names the environment variables the uploader reads at
// construction time; absence of a required variable is fatal at first use,
// per spec §6.
type S3Config struct {
	EndpointEnv  string
	BucketEnv    string
	AccessKeyEnv string
	SecretKeyEnv string
	RegionEnv    string
	Prefix       string
}

// NewS3Uploader reads S3Config's named environment variables and builds a
// client. It does not contact the endpoint.
func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	bucket := os.Getenv(cfg.BucketEnv)
	if bucket == "" {
		return nil, orcherr.Configuration(fmt.Sprintf("missing env %s", cfg.BucketEnv), nil)
	}
	endpoint := os.Getenv(cfg.EndpointEnv)
	accessKey := os.Getenv(cfg.AccessKeyEnv)
	secretKey := os.Getenv(cfg.SecretKeyEnv)
	region := os.Getenv(cfg.RegionEnv)
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, orcherr.Configuration("load s3 config", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = true
	})

	return &S3Uploader{client: client, bucket: bucket, prefix: cfg.Prefix}, nil
}

// Upload puts localPath's contents to the configured bucket and returns an
// https URL referencing it.
func (u *S3Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("s3uploader: open %s: %w", localPath, err)
	}
	defer f.Close()

	key := filepath.Join(u.prefix, filepath.Base(localPath))
	if _, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		return "", fmt.Errorf("s3uploader: put %s: %w", key, err)
	}

	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", u.bucket, key), nil
}
