// Package objstore talks to the remote object store that holds every durable
// artifact of the annotation engine: metadata feeds, decision logs, progress
// hints and pointer objects. The store is rate-limited, occasionally slow and
// not linearizable, so all access goes through a QPS guard and a retrying
// transport.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Store is the remote object store contract the engine is written against.
// Object ids are opaque; the MinIO implementation uses bucket keys, the
// in-memory implementation uses plain strings. Deleting an absent object is
// success: the desired end state is already achieved.
type Store interface {
	ReadText(ctx context.Context, objectID string) (string, error)
	WriteText(ctx context.Context, objectID, content string) error
	Delete(ctx context.Context, objectID string) error
	ListFolder(ctx context.Context, folderID string) (map[string]string, error)
	CreatePointer(ctx context.Context, sourceID, name, destFolderID string) (string, error)
}

const pointerContentType = "application/x-pointer"

// MinioStore implements Store against a single bucket. A folder id is a key
// prefix; an object id is a full key. A pointer object is a tiny object whose
// body and user metadata name the source key, marking an accepted asset
// without duplicating its bytes.
type MinioStore struct {
	client    *minio.Client
	bucket    string
	transport *Transport
	logger    *zap.Logger
}

type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseTLS    bool
	Transport TransportOptions
}

func NewMinioStore(opts MinioOptions, logger *zap.Logger) (*MinioStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}
	return &MinioStore{
		client:    client,
		bucket:    opts.Bucket,
		transport: NewTransport(opts.Transport, logger),
		logger:    logger,
	}, nil
}

func (s *MinioStore) ReadText(ctx context.Context, objectID string) (string, error) {
	var content string
	err := s.transport.Do(ctx, "read "+objectID, func() error {
		obj, err := s.client.GetObject(ctx, s.bucket, objectID, minio.GetObjectOptions{})
		if err != nil {
			return err
		}
		defer obj.Close()
		data, err := io.ReadAll(obj)
		if err != nil {
			return err
		}
		content = string(data)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("read %s: %w", objectID, err)
	}
	return content, nil
}

func (s *MinioStore) WriteText(ctx context.Context, objectID, content string) error {
	err := s.transport.Do(ctx, "write "+objectID, func() error {
		_, err := s.client.PutObject(ctx, s.bucket, objectID,
			strings.NewReader(content), int64(len(content)),
			minio.PutObjectOptions{ContentType: "text/plain"})
		return err
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", objectID, err)
	}
	return nil
}

func (s *MinioStore) Delete(ctx context.Context, objectID string) error {
	err := s.transport.Do(ctx, "delete "+objectID, func() error {
		return s.client.RemoveObject(ctx, s.bucket, objectID, minio.RemoveObjectOptions{})
	})
	if err != nil {
		if IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("delete %s: %w", objectID, err)
	}
	return nil
}

// ListFolder returns the complete name -> object id map for one folder.
// Listings are expensive at scale; callers go through FolderIndex instead of
// calling this per lookup.
func (s *MinioStore) ListFolder(ctx context.Context, folderID string) (map[string]string, error) {
	prefix := strings.TrimSuffix(folderID, "/") + "/"
	out := map[string]string{}
	err := s.transport.Do(ctx, "list "+folderID, func() error {
		listing := map[string]string{}
		for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: false,
		}) {
			if info.Err != nil {
				return info.Err
			}
			if strings.HasSuffix(info.Key, "/") {
				continue
			}
			listing[path.Base(info.Key)] = info.Key
		}
		out = listing
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", folderID, err)
	}
	return out, nil
}

func (s *MinioStore) CreatePointer(ctx context.Context, sourceID, name, destFolderID string) (string, error) {
	pointerID := strings.TrimSuffix(destFolderID, "/") + "/" + name
	err := s.transport.Do(ctx, "pointer "+pointerID, func() error {
		_, err := s.client.PutObject(ctx, s.bucket, pointerID,
			strings.NewReader(sourceID), int64(len(sourceID)),
			minio.PutObjectOptions{
				ContentType:  pointerContentType,
				UserMetadata: map[string]string{"source-object": sourceID},
			})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("create pointer %s: %w", pointerID, err)
	}
	return pointerID, nil
}

// IsNotFound reports whether err means the object does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
