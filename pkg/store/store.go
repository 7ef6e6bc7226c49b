// Package store reads and writes XC3 documents in S3.
package store

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/xgrid/xc3/internal/aws/awserrs"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("object not found")

const accessDenied = "AccessDenied"

// Store is a bucket holding JSON documents.
type Store struct {
	Logger *zap.Logger
	S3     s3iface.S3API
	Bucket string
}

// WithBucket returns a copy of the store reading and writing bucket.
func (s *Store) WithBucket(bucket string) *Store {
	c := *s
	c.Bucket = bucket
	return &c
}

// Put uploads body under key.
func (s *Store) Put(key string, body []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.S3.PutObject(input); err != nil {
		return s.uploadError(err)
	}
	s.Logger.Info("Uploaded object",
		zap.String("bucket", s.Bucket),
		zap.String("key", key),
		zap.Int("bytes", len(body)))
	return nil
}

// PutJSON uploads v encoded as JSON.
func (s *Store) PutJSON(key string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "unable to encode %s", key)
	}
	return s.Put(key, body, "application/json")
}

func (s *Store) uploadError(err error) error {
	switch awserrs.Code(err) {
	case s3.ErrCodeNoSuchBucket:
		return errors.Errorf("bucket not found: %s", s.Bucket)
	case accessDenied:
		return errors.Errorf("access denied to S3 bucket: %s", s.Bucket)
	}
	return errors.Wrap(err, "failed to upload data to S3 bucket")
}

// Get downloads the object under key.
func (s *Store) Get(key string) ([]byte, error) {
	out, err := s.S3.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if awserrs.HasCode(err, s3.ErrCodeNoSuchKey) {
			return nil, errors.Wrapf(ErrNotFound, "no such key %s in bucket %s", key, s.Bucket)
		}
		if awserrs.HasCode(err, s3.ErrCodeNoSuchBucket) {
			return nil, errors.Errorf("bucket not found: %s", s.Bucket)
		}
		return nil, errors.Wrapf(err, "unable to get %s from bucket %s", key, s.Bucket)
	}
	defer out.Body.Close()
	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read %s", key)
	}
	return body, nil
}

// GetJSON decodes the JSON document under key into v.
func (s *Store) GetJSON(key string, v interface{}) error {
	body, err := s.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.Wrapf(err, "%s is not valid JSON", key)
	}
	return nil
}

// GetGzipJSON decodes a gzip compressed JSON document.
func (s *Store) GetGzipJSON(key string, v interface{}) error {
	body, err := s.Get(key)
	if err != nil {
		return err
	}
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "%s is not gzip compressed", key)
	}
	defer zr.Close()
	if err := json.NewDecoder(zr).Decode(v); err != nil {
		return errors.Wrapf(err, "%s is not valid JSON", key)
	}
	return nil
}

// List returns every object under prefix.
func (s *Store) List(prefix string) ([]*s3.Object, error) {
	var objects []*s3.Object
	err := s.S3.ListObjectsV2Pages(&s3.ListObjectsV2Input{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		objects = append(objects, page.Contents...)
		return true
	})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to list %s in bucket %s", prefix, s.Bucket)
	}
	return objects, nil
}

// Latest returns the most recently modified key under prefix.
func (s *Store) Latest(prefix string) (string, error) {
	objects, err := s.List(prefix)
	if err != nil {
		return "", err
	}
	var latest *s3.Object
	for _, o := range objects {
		if latest == nil || aws.TimeValue(o.LastModified).After(aws.TimeValue(latest.LastModified)) {
			latest = o
		}
	}
	if latest == nil {
		return "", errors.Wrapf(ErrNotFound, "no objects under %s in bucket %s", prefix, s.Bucket)
	}
	return aws.StringValue(latest.Key), nil
}

// DatedKey places name under prefix/YYYY/MM/DD.
func DatedKey(prefix string, t time.Time, name string) string {
	return path.Join(prefix, fmt.Sprintf("%04d/%02d/%02d", t.Year(), int(t.Month()), t.Day()), name)
}

// IsNotFound reports whether err means the object was missing.
func IsNotFound(err error) bool {
	return errors.Cause(err) == ErrNotFound
}
