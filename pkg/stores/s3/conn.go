package s3

import (
	"context"
	"io"
	"sort"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Conn struct {
	client *minio.Client
}

type ConnConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Secure    bool
}

func NewConn(cfg ConnConfig) (*Conn, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.Secure,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})

	if err != nil {
		return nil, err
	}

	return &Conn{client: client}, nil
}

func (conn *Conn) Put(
	ctx context.Context,
	bucketName string,
	objectKey string,
	body io.Reader,
	size int64,
) error {
	_, err := conn.client.PutObject(ctx, bucketName, objectKey, body, size, minio.PutObjectOptions{
		ContentType: "application/json",
	})

	return err
}

// List returns the object keys under prefix, sorted.
func (conn *Conn) List(ctx context.Context, bucketName, prefix string) ([]string, error) {
	var keys []string

	for object := range conn.client.ListObjects(ctx, bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, object.Err
		}

		keys = append(keys, object.Key)
	}

	sort.Strings(keys)

	return keys, nil
}
