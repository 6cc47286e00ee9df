package conversation

import (
	"context"
	"time"

	"github.com/speakerid-team/speaker-id/internal/infrastructure/vector"
)

// ObjectStore is the blob-store surface the coordinator needs.
type ObjectStore interface {
	Exists(ctx context.Context, objectKey string) (bool, error)
	Download(ctx context.Context, objectKey, localPath string) error
	UploadPath(ctx context.Context, objectKey, localPath, contentType string) error
	GetFileURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	RemoveKeys(ctx context.Context, keys []string) (deleted, failed int, err error)
}

// VectorIndex is the similarity-index surface the coordinator needs.
type VectorIndex interface {
	Upsert(ctx context.Context, id string, values []float32, metadata map[string]interface{}) error
	Delete(ctx context.Context, ids []string) error
	Query(ctx context.Context, req vector.QueryRequest) ([]vector.Match, error)
	Fetch(ctx context.Context, ids []string) (map[string]vector.Vector, error)
}

// Embedder turns a local audio file into a fixed-length voiceprint vector.
type Embedder interface {
	EmbedFile(ctx context.Context, path string) ([]float32, error)
}

// Converter normalizes audio to the WAV shape the embedder expects.
type Converter interface {
	ConvertToWAV(ctx context.Context, inputPath string) (string, error)
	ClipToWAV(ctx context.Context, inputPath string, startMs, endMs int64, outputPath string) error
}
