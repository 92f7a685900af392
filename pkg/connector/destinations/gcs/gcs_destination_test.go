package gcs

import (
	stdcsv "encoding/csv"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/zenithml/zenith/pkg/compression"
	"github.com/zenithml/zenith/pkg/config"
	"github.com/zenithml/zenith/pkg/testutil"
)

func testGCSConfig() *config.BaseConfig {
	cfg := config.NewBaseConfig("test-export", "destination")
	cfg.Sink.Bucket = "test-bucket"
	cfg.Sink.Prefix = "taxifare"
	cfg.Sink.Columns = []string{"fare_amount", "passengers"}
	cfg.Reliability.HealthCheck = false
	return cfg
}

func TestNewGCSDestinationRequiresBucket(t *testing.T) {
	cfg := testGCSConfig()
	cfg.Sink.Bucket = ""
	cfg.GCP.Bucket = ""

	_, err := NewGCSDestination(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")
}

func TestObjectNaming(t *testing.T) {
	cfg := testGCSConfig()
	cfg.Sink.Shards = 4
	cfg.Sink.Compression = "gzip"

	dest, err := NewGCSDestination(cfg)
	require.NoError(t, err)

	assert.Equal(t, "taxifare/train-00002-of-00004.csv.gz", dest.objectName("train", 2))
}

// A shard whose upload fails must surface the close error instead of
// panicking on the nil post-close attributes.
func TestCloseSurfacesFailedUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upload rejected", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	client, err := storage.NewClient(ctx,
		option.WithEndpoint(srv.URL),
		option.WithoutAuthentication())
	require.NoError(t, err)

	dest, err := NewGCSDestination(testGCSConfig())
	require.NoError(t, err)
	dest.client = client
	dest.bucketHandle = client.Bucket(dest.bucket)

	objectName := dest.objectName("train", 0)
	w := dest.bucketHandle.Object(objectName).
		Retryer(storage.WithPolicy(storage.RetryNever)).
		NewWriter(ctx)

	compressed, err := compression.WrapWriter(w, compression.None)
	require.NoError(t, err)

	sw := &shardWriter{
		objectName: objectName,
		gcsWriter:  w,
		compressed: compressed,
		csvWriter:  stdcsv.NewWriter(compressed),
		records:    1,
	}
	require.NoError(t, sw.csvWriter.Write([]string{"11.5", "2"}))

	dest.writers["train"] = []*shardWriter{sw}
	dest.counter["train"] = 1
	dest.recordsWritten = 1

	err = dest.Close(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to close shard")
	assert.Zero(t, dest.bytesWritten)
}
