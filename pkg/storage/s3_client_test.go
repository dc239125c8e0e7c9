package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryS3Client(t *testing.T) {
	ctx := context.Background()
	client := NewMemoryS3Client("http://localhost:9000")

	require.NoError(t, client.Upload(ctx, "exports", "a.csv", strings.NewReader("id\n1\n"), "text/csv"))

	body, err := client.Download(ctx, "exports", "a.csv")
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "id\n1\n", string(data))

	ct, ok := client.ContentType("exports", "a.csv")
	assert.True(t, ok)
	assert.Equal(t, "text/csv", ct)

	url, err := client.GetPresignedURL(ctx, "exports", "a.csv", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/exports/a.csv?expires=900", url)

	require.NoError(t, client.Delete(ctx, "exports", "a.csv"))
	_, err = client.Download(ctx, "exports", "a.csv")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestAWSClientAgainstEndpoint(t *testing.T) {
	var gotPath, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			gotPath = r.URL.Path
			gotContentType = r.Header.Get("Content-Type")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx := context.Background()
	client, err := NewS3Client(ctx, S3Config{
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		UsePathStyle:    true,
	})
	require.NoError(t, err)

	require.NoError(t, client.Upload(ctx, "exports", "contracts.csv", strings.NewReader("id\n"), "text/csv"))
	assert.Equal(t, "/exports/contracts.csv", gotPath)
	assert.Equal(t, "text/csv", gotContentType)

	url, err := client.GetPresignedURL(ctx, "exports", "contracts.csv", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, srv.URL+"/exports/contracts.csv?"))
	assert.Contains(t, url, "X-Amz-Expires=60")
}
