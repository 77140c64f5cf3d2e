// store/evidence.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package store

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/firewatch-uas/firewatch/log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// EvidenceStore archives detection imagery to an S3 bucket. Detection
// records carry the resulting object URL; the imagery itself never
// touches the relational store.
type EvidenceStore struct {
	client *s3.Client
	bucket string
	lg     *log.Logger
}

func NewEvidenceStore(ctx context.Context, bucket string, lg *log.Logger) (*EvidenceStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return &EvidenceStore{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		lg:     lg,
	}, nil
}

// Put uploads evidence for a detection and returns its object URL. Keys
// are date-partitioned for retention sweeps.
func (e *EvidenceStore) Put(ctx context.Context, detectionID string, data []byte, contentType string) (string, error) {
	key := "evidence/" + time.Now().UTC().Format("2006/01/02") + "/" + detectionID

	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", err
	}

	e.lg.Debugf("evidence: stored %d bytes at s3://%s/%s", len(data), e.bucket, key)
	return "s3://" + e.bucket + "/" + key, nil
}

// Get fetches previously stored evidence by its object URL.
func (e *EvidenceStore) Get(ctx context.Context, url string) ([]byte, error) {
	key := url
	if prefix := "s3://" + e.bucket + "/"; len(url) > len(prefix) && url[:len(prefix)] == prefix {
		key = url[len(prefix):]
	}

	out, err := e.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
