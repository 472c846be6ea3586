package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method string
	path   string
	acl    string
	meta   string
	body   string
}

// fakeS3 serves just enough of the S3 API for the drivers: path-style PUT,
// DELETE and a ListObjectsV2 split over two pages
type fakeS3 struct {
	bucket string

	mu       sync.Mutex
	requests []recordedRequest
	pages    int
}

const listPage = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
<Name>%s</Name><Prefix></Prefix><KeyCount>%d</KeyCount><MaxKeys>1000</MaxKeys>
<IsTruncated>%t</IsTruncated>%s%s</ListBucketResult>`

const listEntry = `<Contents><Key>%s</Key><LastModified>2024-01-01T00:00:00.000Z</LastModified>` +
	`<ETag>"d41d8cd98f00b204e9800998ecf8427e"</ETag><Size>4</Size><StorageClass>STANDARD</StorageClass></Contents>`

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		method: r.Method,
		path:   r.URL.Path,
		acl:    r.Header.Get("X-Amz-Acl"),
		meta:   r.Header.Get("X-Amz-Meta-X-Amz-Acl"),
		body:   string(body),
	})
	f.mu.Unlock()

	bucketPath := "/" + f.bucket
	switch {
	case r.Method == http.MethodGet && strings.TrimSuffix(r.URL.Path, "/") == bucketPath:
		f.list(w, r)
	case r.Method == http.MethodPut:
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func (f *fakeS3) list(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.pages++
	f.mu.Unlock()

	var keys []string
	truncated := false
	next := ""
	switch r.URL.Query().Get("continuation-token") {
	case "":
		keys, truncated = []string{"a.jpg", "b.jpg"}, true
		next = "<NextContinuationToken>page-2</NextContinuationToken>"
	case "page-2":
		keys = []string{"c.jpg"}
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var entries strings.Builder
	for _, key := range keys {
		fmt.Fprintf(&entries, listEntry, key)
	}

	w.Header().Set("Content-Type", "application/xml")
	fmt.Fprintf(w, listPage, f.bucket, len(keys), truncated, next, entries.String())
}

func (f *fakeS3) recorded(method string) []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []recordedRequest
	for _, req := range f.requests {
		if req.method == method {
			out = append(out, req)
		}
	}
	return out
}

func (f *fakeS3) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pages
}

func newDriver(t *testing.T, driver string) (Client, *fakeS3) {
	t.Helper()

	fake := &fakeS3{bucket: "books"}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), Config{
		Driver:    driver,
		Endpoint:  srv.URL,
		Region:    "us-east-1",
		Bucket:    "books",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		PathStyle: true,
	})
	require.NoError(t, err)
	return c, fake
}

func TestDrivers_Put(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg"), 0o644))

	for _, driver := range []string{DriverMinIO, DriverS3} {
		for _, acl := range []ACL{ACLPrivate, ACLPublicRead} {
			t.Run(driver+"/"+string(acl), func(t *testing.T) {
				c, fake := newDriver(t, driver)

				require.NoError(t, c.Put(context.Background(), path, "covers/a.jpg", acl))

				puts := fake.recorded(http.MethodPut)
				require.Len(t, puts, 1)
				assert.Equal(t, "/books/covers/a.jpg", puts[0].path)
				assert.Equal(t, string(acl), puts[0].acl)
				assert.Empty(t, puts[0].meta, "acl must not be sent as user metadata")
				assert.Contains(t, puts[0].body, "jpeg")
			})
		}
	}
}

func TestDrivers_ListFollowsContinuation(t *testing.T) {
	for _, driver := range []string{DriverMinIO, DriverS3} {
		t.Run(driver, func(t *testing.T) {
			c, fake := newDriver(t, driver)

			keys, err := c.List(context.Background(), "")
			require.NoError(t, err)
			assert.Equal(t, []string{"a.jpg", "b.jpg", "c.jpg"}, keys)
			assert.Equal(t, 2, fake.listCalls())
		})
	}
}

func TestDrivers_Delete(t *testing.T) {
	for _, driver := range []string{DriverMinIO, DriverS3} {
		t.Run(driver, func(t *testing.T) {
			c, fake := newDriver(t, driver)

			require.NoError(t, c.Delete(context.Background(), "covers/a.jpg"))

			deletes := fake.recorded(http.MethodDelete)
			require.Len(t, deletes, 1)
			assert.Equal(t, "/books/covers/a.jpg", deletes[0].path)
		})
	}
}
