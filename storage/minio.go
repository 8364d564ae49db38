package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"stemdeck/logger"
	"stemdeck/model"
)

var contentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".aiff": "audio/aiff",
	".aif":  "audio/aiff",
}

// ContentTypeFor returns the MIME type for an audio file path,
// defaulting to octet-stream.
func ContentTypeFor(path string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Mirror uploads produced stems to a MinIO bucket so other services can
// reach them without touching this host's disk. A nil Mirror is valid
// and does nothing; mirroring stays optional.
type Mirror struct {
	client *minio.Client
	bucket string
}

// NewMirror connects to MinIO and makes sure the bucket exists.
func NewMirror(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Mirror, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("storage: check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("storage: create bucket %s: %w", bucket, err)
		}
	}
	logger.Info("minio mirror ready",
		logger.String("endpoint", endpoint),
		logger.String("bucket", bucket))
	return &Mirror{client: client, bucket: bucket}, nil
}

// MirrorManifest uploads every stem file a manifest names. Upload
// failures are logged per object and never fail the separation that
// produced them.
func (m *Mirror) MirrorManifest(ctx context.Context, mf *model.Manifest) {
	if m == nil || mf == nil {
		return
	}
	for _, stem := range mf.Stems {
		m.put(ctx, objectKey(mf.JobID, "", stem.Name, stem.Path), stem.Path)
	}
	if mf.Mix != nil && mf.Mix.Path != "" {
		m.put(ctx, objectKey(mf.JobID, "", "mix", mf.Mix.Path), mf.Mix.Path)
	}
	for parent, children := range mf.ChildSplits {
		for _, child := range children {
			m.put(ctx, objectKey(mf.JobID, parent, child.Name, child.Path), child.Path)
		}
	}
}

// MirrorChildren uploads the children of one secondary split.
func (m *Mirror) MirrorChildren(ctx context.Context, jobID string, children []model.ChildStem) {
	if m == nil {
		return
	}
	for _, child := range children {
		m.put(ctx, objectKey(jobID, child.Parent, child.Name, child.Path), child.Path)
	}
}

func objectKey(jobID, parent, name, path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if parent != "" {
		return jobID + "/" + parent + "/" + name + ext
	}
	return jobID + "/" + name + ext
}

// RemoveJob deletes every mirrored object under the job's prefix.
func (m *Mirror) RemoveJob(ctx context.Context, jobID string) error {
	if m == nil {
		return nil
	}
	listed := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    jobID + "/",
		Recursive: true,
	})
	toDelete := make(chan minio.ObjectInfo)
	go func() {
		defer close(toDelete)
		for obj := range listed {
			if obj.Err != nil {
				logger.Warn("minio list failed during cleanup",
					logger.String("job", jobID),
					logger.ErrorField(obj.Err))
				continue
			}
			toDelete <- obj
		}
	}()
	var firstErr error
	for res := range m.client.RemoveObjects(ctx, m.bucket, toDelete, minio.RemoveObjectsOptions{}) {
		if res.Err != nil {
			logger.Warn("minio object removal failed",
				logger.String("object", res.ObjectName),
				logger.ErrorField(res.Err))
			if firstErr == nil {
				firstErr = res.Err
			}
		}
	}
	return firstErr
}

func (m *Mirror) put(ctx context.Context, key, path string) {
	if path == "" {
		return
	}
	_, err := m.client.FPutObject(ctx, m.bucket, key, path, minio.PutObjectOptions{
		ContentType: ContentTypeFor(path),
	})
	if err != nil {
		logger.Warn("minio mirror upload failed",
			logger.String("object", key),
			logger.ErrorField(err))
		return
	}
	logger.Debug("stem mirrored", logger.String("object", key))
}
