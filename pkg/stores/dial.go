/*
Package stores picks the memory backend for a connection profile.
*/
package stores

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/theapemachine/memoria/pkg/config"
	"github.com/theapemachine/memoria/pkg/memory"
	"github.com/theapemachine/memoria/pkg/stores/qdrant"
	"github.com/theapemachine/memoria/pkg/stores/sqlite"
)

/*
Dial opens the backend named by the connection url: http(s) speaks to a
Qdrant server, sqlite:// opens a local database file.
*/
func Dial(ctx context.Context, conn config.Connection) (memory.Backend, error) {
	target, err := url.Parse(conn.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid connection url %q: %w", conn.URL, err)
	}

	switch target.Scheme {
	case "http", "https":
		return qdrant.New(
			conn.URL,
			conn.Collection,
			qdrant.WithAPIKey(conn.APIKey),
			qdrant.WithTimeout(conn.Timeout),
		), nil
	case "sqlite":
		return sqlite.Open(config.ExpandHome(strings.TrimPrefix(conn.URL, "sqlite://")), conn.Collection)
	}

	return nil, fmt.Errorf("unsupported connection scheme %q", target.Scheme)
}
