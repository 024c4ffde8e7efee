package s3

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestObjectKey(t *testing.T) {
	Convey("Given a timestamp and a reason", t, func() {
		at := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

		Convey("Then the key should sort by time and be path safe", func() {
			key := ObjectKey("taxonomy", at, "Rename work/projects")
			So(key, ShouldEqual, "taxonomy/20260301T123000.000000000Z-rename-work-projects.json")
		})
	})
}

func TestArchive(t *testing.T) {
	Convey("Given an S3 compatible server", t, func() {
		var (
			method string
			target string
			body   string
		)

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			method = r.Method
			target = r.URL.Path
			raw, _ := io.ReadAll(r.Body)
			body = string(raw)
			w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		endpoint, _ := url.Parse(ts.URL)

		conn, err := NewConn(ConnConfig{
			Endpoint:  endpoint.Host,
			AccessKey: "access",
			SecretKey: "secret",
			Region:    "us-east-1",
		})
		So(err, ShouldBeNil)

		archiver := NewArchiver(conn, "backups", "")
		archiver.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

		Convey("When a snapshot is archived", func() {
			key, err := archiver.Archive(context.Background(), "delete", []byte(`{"version":1}`))

			Convey("Then the object should be put under the bucket", func() {
				So(err, ShouldBeNil)
				So(method, ShouldEqual, http.MethodPut)
				So(target, ShouldEqual, "/backups/"+key)
				So(strings.HasPrefix(key, "taxonomy/20260301T"), ShouldBeTrue)
				So(body, ShouldContainSubstring, `"version":1`)
			})
		})
	})
}
