// Copyright 2024 The saturn.io Authors
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

package objectstore

import (
	"context"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/pflag"
	"saturn.io/saturn/pkg/utils"
)

type Options struct {
	URL       string `json:"url" description:"s3 endpoint url, uploads are disabled when empty"`
	Bucket    string `json:"bucket" description:"bucket backups are stored in"`
	Region    string `json:"region" description:"bucket region"`
	AccessKey string `json:"accessKey" description:"s3 access key"`
	SecretKey string `json:"secretKey" description:"s3 secret key"`
	Prefix    string `json:"prefix" description:"object key prefix"`
}

func NewDefaultOptions() *Options {
	return &Options{
		Region: "us-east-1",
		Bucket: "saturn-backups",
		Prefix: "backups",
	}
}

func (o *Options) RegistFlags(prefix string, fs *pflag.FlagSet) {
	fs.StringVar(&o.URL, utils.JoinFlagName(prefix, "url"), o.URL, "s3 endpoint url, uploads are disabled when empty")
	fs.StringVar(&o.Bucket, utils.JoinFlagName(prefix, "bucket"), o.Bucket, "bucket backups are stored in")
	fs.StringVar(&o.Region, utils.JoinFlagName(prefix, "region"), o.Region, "bucket region")
	fs.StringVar(&o.AccessKey, utils.JoinFlagName(prefix, "access-key"), o.AccessKey, "s3 access key")
	fs.StringVar(&o.SecretKey, utils.JoinFlagName(prefix, "secret-key"), o.SecretKey, "s3 secret key")
	fs.StringVar(&o.Prefix, utils.JoinFlagName(prefix, "prefix"), o.Prefix, "object key prefix")
}

func (o *Options) Enabled() bool {
	return o != nil && o.URL != ""
}

// Uploader stores backup artifacts.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64) (string, error)
}

type S3Uploader struct {
	options *Options
	s3cli   *s3.Client
}

func NewS3Uploader(ctx context.Context, opts *Options) (*S3Uploader, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		),
		config.WithEndpointResolverWithOptions(
			aws.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{URL: opts.URL}, nil
				},
			),
		),
	)
	if err != nil {
		return nil, err
	}
	s3cli := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.Region = opts.Region
		o.UsePathStyle = true
	})
	return &S3Uploader{options: opts, s3cli: s3cli}, nil
}

// Upload puts body under prefix/key and returns the full object key.
func (u *S3Uploader) Upload(ctx context.Context, key string, body io.Reader, size int64) (string, error) {
	objectKey := ObjectKey(u.options.Prefix, key)
	_, err := u.s3cli.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.options.Bucket),
		Key:           aws.String(objectKey),
		Body:          body,
		ContentLength: size,
	})
	if err != nil {
		return "", err
	}
	return objectKey, nil
}

func ObjectKey(prefix, key string) string {
	return path.Join(prefix, key)
}
