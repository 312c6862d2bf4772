package s3

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	api := awss3.New(awss3.Options{
		Region:       "us-east-1",
		Credentials:  credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "SECRETEXAMPLE", ""),
		BaseEndpoint: aws.String(endpoint),
		UsePathStyle: true,
	})
	return newWithAPI(api, "receipts")
}

func TestPresignPutSignsContentType(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:9000")

	raw, err := client.PresignPut(context.Background(), "receipts/u/1/photo.jpg", "image/jpeg", 15*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "/receipts/receipts/u/1/photo.jpg", u.Path)
	q := u.Query()
	require.Equal(t, "AWS4-HMAC-SHA256", q.Get("X-Amz-Algorithm"))
	require.Equal(t, "900", q.Get("X-Amz-Expires"))
	require.Contains(t, strings.Split(q.Get("X-Amz-SignedHeaders"), ";"), "content-type")
	require.Contains(t, strings.Split(q.Get("X-Amz-SignedHeaders"), ";"), "host")
	require.True(t, strings.HasPrefix(q.Get("X-Amz-Credential"), "AKIDEXAMPLE/"))
}

func TestPresignPutContentTypeChangesSignature(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:9000")
	ctx := context.Background()

	jpeg, err := client.PresignPut(ctx, "receipts/u/1/photo", "image/jpeg", time.Minute)
	require.NoError(t, err)
	png, err := client.PresignPut(ctx, "receipts/u/1/photo", "image/png", time.Minute)
	require.NoError(t, err)

	ju, err := url.Parse(jpeg)
	require.NoError(t, err)
	pu, err := url.Parse(png)
	require.NoError(t, err)
	require.NotEqual(t, ju.Query().Get("X-Amz-Signature"), pu.Query().Get("X-Amz-Signature"))
}

func TestPresignGet(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:9000")

	raw, err := client.PresignGet(context.Background(), "receipts/u/1/photo.jpg", time.Hour)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "3600", u.Query().Get("X-Amz-Expires"))
	require.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

func TestPresignValidation(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:9000")
	ctx := context.Background()

	_, err := client.PresignPut(ctx, "", "image/png", time.Minute)
	require.Error(t, err)
	_, err = client.PresignPut(ctx, "k", "", time.Minute)
	require.Error(t, err)
	_, err = client.PresignGet(ctx, "k", 0)
	require.Error(t, err)

	var nilClient *Client
	_, err = nilClient.PresignGet(ctx, "k", time.Minute)
	require.Error(t, err)
}

func TestDeleteAndPingHitBucket(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, r.Method+" "+r.URL.Path)
		mu.Unlock()
		switch r.Method {
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		case http.MethodHead:
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	require.NoError(t, client.Delete(context.Background(), "receipts/u/1/photo.jpg"))
	require.NoError(t, client.Ping(context.Background()))
	require.Error(t, client.Delete(context.Background(), " "))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, requests, 2)
	require.Equal(t, "DELETE /receipts/receipts/u/1/photo.jpg", requests[0])
	require.True(t, strings.HasPrefix(requests[1], "HEAD /receipts"), requests[1])
}
