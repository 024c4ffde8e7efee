package s3

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

/*
Archiver uploads a copy of the taxonomy file before a destructive category
mutation, so a bad rename or delete can be undone by hand.
*/
type Archiver struct {
	conn   *Conn
	bucket string
	prefix string
	now    func() time.Time
}

/*
NewArchiver creates an archiver writing to bucket under prefix.
*/
func NewArchiver(conn *Conn, bucket, prefix string) *Archiver {
	if prefix == "" {
		prefix = "taxonomy"
	}

	return &Archiver{
		conn:   conn,
		bucket: bucket,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

/*
ObjectKey names a snapshot so that keys sort chronologically.
*/
func ObjectKey(prefix string, at time.Time, reason string) string {
	reason = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		}
		return '-'
	}, strings.ToLower(reason))

	return path.Join(prefix, fmt.Sprintf("%s-%s.json", at.UTC().Format("20060102T150405.000000000Z"), reason))
}

/*
Archive stores data and returns the key it was written under.
*/
func (archiver *Archiver) Archive(ctx context.Context, reason string, data []byte) (string, error) {
	key := ObjectKey(archiver.prefix, archiver.now(), reason)

	if err := archiver.conn.Put(ctx, archiver.bucket, key, bytes.NewReader(data), int64(len(data))); err != nil {
		log.Error("failed to archive taxonomy", "error", err, "bucket", archiver.bucket, "key", key)
		return "", err
	}

	log.Info("taxonomy archived", "bucket", archiver.bucket, "key", key)

	return key, nil
}

/*
Snapshots lists the archived keys, oldest first.
*/
func (archiver *Archiver) Snapshots(ctx context.Context) ([]string, error) {
	return archiver.conn.List(ctx, archiver.bucket, archiver.prefix+"/")
}
