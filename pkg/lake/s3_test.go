package lake

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBucket speaks just enough of the S3 REST dialect for the store:
// path-style object reads and writes plus ListObjectsV2.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := strings.TrimPrefix(r.URL.Path, "/lake/")
	switch {
	case r.Method == http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		b.objects[key] = data
	case r.Method == http.MethodDelete:
		delete(b.objects, key)
		w.WriteHeader(http.StatusNoContent)
	case r.URL.Query().Get("list-type") == "2":
		prefix := r.URL.Query().Get("prefix")
		var sb strings.Builder
		sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult><Name>lake</Name><IsTruncated>false</IsTruncated>`)
		for k := range b.objects {
			if strings.HasPrefix(k, prefix) {
				fmt.Fprintf(&sb, "<Contents><Key>%s</Key></Contents>", k)
			}
		}
		sb.WriteString(`</ListBucketResult>`)
		w.Header().Set("Content-Type", "application/xml")
		io.WriteString(w, sb.String())
	default:
		data, ok := b.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		w.Write(data)
	}
}

func newTestS3Store(t *testing.T) *S3Store {
	t.Helper()
	srv := httptest.NewServer(&fakeBucket{objects: map[string][]byte{}})
	t.Cleanup(srv.Close)

	client := s3.NewFromConfig(aws.Config{
		Region:      "ap-southeast-1",
		Credentials: credentials.NewStaticCredentialsProvider("test", "test", ""),
	}, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(srv.URL)
		o.UsePathStyle = true
	})
	return NewS3StoreWithClient(client, "lake")
}

func TestS3StorePutGetList(t *testing.T) {
	ctx := context.Background()
	store := newTestS3Store(t)

	require.NoError(t, store.Put(ctx, "bronze/prices/b.parquet", []byte("bbb")))
	require.NoError(t, store.Put(ctx, "bronze/prices/a.parquet", []byte("aaa")))
	require.NoError(t, store.Put(ctx, "bronze/news/c.parquet", []byte("ccc")))

	data, err := store.Get(ctx, "bronze/prices/a.parquet")
	require.NoError(t, err)
	assert.Equal(t, []byte("aaa"), data)

	paths, err := store.List(ctx, "bronze/prices/")
	require.NoError(t, err)
	assert.Equal(t, []string{"bronze/prices/a.parquet", "bronze/prices/b.parquet"}, paths)
}

func TestS3StoreGetMissingKey(t *testing.T) {
	store := newTestS3Store(t)

	_, err := store.Get(context.Background(), "bronze/prices/none.parquet")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestS3StoreDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestS3Store(t)

	require.NoError(t, store.Put(ctx, "bronze/prices/a.parquet", []byte("aaa")))
	require.NoError(t, store.Delete(ctx, "bronze/prices/a.parquet"))

	_, err := store.Get(ctx, "bronze/prices/a.parquet")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
