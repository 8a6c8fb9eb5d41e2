package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	mclient "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pribylovaa/go-cheffrey-client/internal/config"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Тесты пакета media:
//   - unit: проверки типа/размера/владельца без сети;
//   - интеграция: реальный MinIO через testcontainers-go
//     (New без бакета, Upload + чтение объекта, Remove).
//
// Запуск интеграционных:
//   GO_TEST_INTEGRATION=1 go test ./internal/media -v -race -count=1

func limits() config.PhotoConfig {
	return config.PhotoConfig{
		MaxSizeBytes:        1 << 20,
		AllowedContentTypes: []string{"image/jpeg", "image/png", "image/webp"},
	}
}

func TestNewKey_Validation(t *testing.T) {
	t.Parallel()

	u := &Uploader{limits: limits()}

	tests := []struct {
		name   string
		user   string
		ct     string
		size   int64
		wantOK bool
	}{
		{name: "ok jpeg", user: "42", ct: "image/jpeg", size: 10, wantOK: true},
		{name: "gif not allowed", user: "42", ct: "image/gif", size: 10},
		{name: "zero size", user: "42", ct: "image/png", size: 0},
		{name: "too big", user: "42", ct: "image/png", size: 1<<20 + 1},
		{name: "empty user", user: "", ct: "image/png", size: 10},
		{name: "slash in user", user: "../x", ct: "image/png", size: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := u.newKey(tt.user, tt.ct, tt.size)
			if !tt.wantOK {
				require.ErrorIs(t, err, ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(key, "recipes/42/"))
			require.True(t, strings.HasSuffix(key, ".jpg"))
		})
	}
}

func TestUpload_RejectsBeforeNetwork(t *testing.T) {
	t.Parallel()

	// client == nil: до сети дойти не должно
	u := &Uploader{limits: limits()}
	_, err := u.Upload(context.Background(), "42", "text/plain", strings.NewReader("x"), 1)
	require.ErrorIs(t, err, ErrInvalidArgument)

	require.ErrorIs(t, u.Remove(context.Background(), "42", "recipes/43/a.png"), ErrInvalidArgument)
}

func TestPublicURL(t *testing.T) {
	t.Parallel()

	u := &Uploader{}
	require.Empty(t, u.PublicURL("recipes/1/a.png"))

	u.s3.PublicBaseURL = "http://cdn.local/"
	require.Equal(t, "http://cdn.local/recipes/1/a.png", u.PublicURL("recipes/1/a.png"))
}

func TestNew_NotConfigured(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), &config.Config{})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func startMinio(t *testing.T, createBucket bool) (*config.Config, *mclient.Client) {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	const (
		image     = "docker.io/minio/minio:latest"
		accessKey = "root"
		secretKey = "rootpass"
		bucket    = "recipes"
	)
	req := tc.ContainerRequest{
		Image: image,
		Env: map[string]string{
			"MINIO_ROOT_USER":     accessKey,
			"MINIO_ROOT_PASSWORD": secretKey,
		},
		Cmd:          []string{"server", "/data"},
		ExposedPorts: []string{"9000/tcp"},
		WaitingFor:   wait.ForListeningPort("9000/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "9000/tcp")
	require.NoError(t, err)

	admin, err := mclient.New(host+":"+port.Port(), &mclient.Options{
		Creds: credentials.NewStaticV4(accessKey, secretKey, ""),
	})
	require.NoError(t, err)
	if createBucket {
		require.NoError(t, admin.MakeBucket(ctx, bucket, mclient.MakeBucketOptions{Region: "us-east-1"}))
	}

	cfg := &config.Config{
		S3: config.S3Config{
			Endpoint:      fmt.Sprintf("http://%s:%s", host, port.Port()),
			AccessKey:     accessKey,
			SecretKey:     secretKey,
			Bucket:        bucket,
			PublicBaseURL: "http://cdn.local",
		},
		Photo: limits(),
	}
	return cfg, admin
}

func TestIntegration_New_BucketMustExist(t *testing.T) {
	cfg, _ := startMinio(t, false)

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}

func TestIntegration_UploadAndRemove(t *testing.T) {
	cfg, admin := startMinio(t, true)
	ctx := context.Background()

	u, err := New(ctx, cfg)
	require.NoError(t, err)

	body := bytes.Repeat([]byte{0x42}, 64)
	p, err := u.Upload(ctx, "42", "image/png", bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	require.EqualValues(t, len(body), p.Size)
	require.Equal(t, "http://cdn.local/"+p.Key, p.URL)

	obj, err := admin.GetObject(ctx, cfg.S3.Bucket, p.Key, mclient.GetObjectOptions{})
	require.NoError(t, err)
	got, err := io.ReadAll(obj)
	require.NoError(t, err)
	require.Equal(t, body, got)

	st, err := obj.Stat()
	require.NoError(t, err)
	require.Equal(t, "image/png", st.ContentType)

	require.ErrorIs(t, u.Remove(ctx, "43", p.Key), ErrInvalidArgument)
	require.NoError(t, u.Remove(ctx, "42", p.Key))

	_, err = admin.StatObject(ctx, cfg.S3.Bucket, p.Key, mclient.StatObjectOptions{})
	require.Error(t, err)
}
