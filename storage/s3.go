package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"swap-orchestrator/core/models"
)

// S3Store stores artifacts as S3 objects under
// s3://<bucket>/<prefix>/<session_id>/<kind>.<ext>. It satisfies the same
// deterministic-key contract as DiskStore.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store creates an S3-backed artifact store using the default AWS
// credential chain
func NewS3Store(ctx context.Context, bucket, prefix string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return &S3Store{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func (s *S3Store) key(sessionID string, kind models.ArtifactKind, ext string) string {
	return path.Join(s.prefix, sessionID, string(kind)+ext)
}

// Save uploads the artifact bytes. S3 PUTs are atomic per key, so a failed
// upload never replaces the previous object.
func (s *S3Store) Save(ctx context.Context, sessionID string, kind models.ArtifactKind, data []byte, mimeType string) (models.Artifact, error) {
	key := s.key(sessionID, kind, extensionFor(mimeType))
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return models.Artifact{}, err
	}

	// Drop a stale copy saved earlier under the other extension
	for _, ext := range []string{".jpg", ".png"} {
		alt := s.key(sessionID, kind, ext)
		if alt != key {
			s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(alt),
			})
		}
	}

	return models.Artifact{
		Kind:      kind,
		SessionID: sessionID,
		Path:      "s3://" + s.bucket + "/" + key,
		MimeType:  mimeType,
		Size:      int64(len(data)),
		CreatedAt: time.Now(),
	}, nil
}

// Load downloads the artifact bytes for (sessionID, kind)
func (s *S3Store) Load(ctx context.Context, sessionID string, kind models.ArtifactKind) ([]byte, string, error) {
	for _, ext := range []string{".jpg", ".png"} {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(sessionID, kind, ext)),
		})
		if err != nil {
			var noKey *types.NoSuchKey
			if errors.As(err, &noKey) {
				continue
			}
			return nil, "", err
		}
		data, err := io.ReadAll(out.Body)
		out.Body.Close()
		if err != nil {
			return nil, "", err
		}
		return data, mimeTypeFor(ext), nil
	}
	return nil, "", ErrArtifactNotFound
}

// DeleteSession removes every object under the session prefix
func (s *S3Store) DeleteSession(ctx context.Context, sessionID string) error {
	sessionPrefix := path.Join(s.prefix, sessionID) + "/"

	var continuation *string
	for {
		listed, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(sessionPrefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return err
		}
		if len(listed.Contents) == 0 {
			return nil
		}

		objects := make([]types.ObjectIdentifier, 0, len(listed.Contents))
		for _, obj := range listed.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}
		_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects},
		})
		if err != nil {
			return err
		}

		if listed.IsTruncated == nil || !*listed.IsTruncated {
			return nil
		}
		continuation = listed.NextContinuationToken
	}
}
