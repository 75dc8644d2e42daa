package classifier

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
)

// LoadArtifact reads a model artifact from a local path or a gs:// URI.
func LoadArtifact(ctx context.Context, uri string) (*ArtifactModel, error) {
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(uri, "gs://") {
		data, err = FetchFromGCS(ctx, uri)
	} else {
		data, err = os.ReadFile(uri)
	}
	if err != nil {
		return nil, fmt.Errorf("LoadArtifact: reading %s: %w", uri, err)
	}

	m, err := ParseArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("LoadArtifact: %s: %w", uri, err)
	}
	return m, nil
}

// SplitGCSURI splits gs://bucket/path/to/object into bucket and object.
func SplitGCSURI(gcsURI string) (bucket, object string, err error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}

	parts := strings.SplitN(strings.TrimPrefix(gcsURI, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}
	return parts[0], parts[1], nil
}

// FetchFromGCS downloads the object bytes at gcsURI.
func FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	bucket, object, err := SplitGCSURI(gcsURI)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetchFromGCS: creating storage client: %w", err)
	}
	defer client.Close()

	rc, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetchFromGCS: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("fetchFromGCS: reading bytes: %w", err)
	}
	return data, nil
}

// UploadArtifact copies a local artifact file to gs://bucket/object.
// It assumes Application Default Credentials are configured.
func UploadArtifact(ctx context.Context, filePath, gcsURI string) error {
	// Refuse to publish something the server could not load.
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("UploadArtifact: open file %q: %w", filePath, err)
	}
	if _, err := ParseArtifact(data); err != nil {
		return fmt.Errorf("UploadArtifact: %w", err)
	}

	bucket, object, err := SplitGCSURI(gcsURI)
	if err != nil {
		return err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("UploadArtifact: create storage client: %w", err)
	}
	defer client.Close()

	w := client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("UploadArtifact: write to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("UploadArtifact: finalize upload: %w", err)
	}
	return nil
}

// LoadOptions selects and configures the classifier backend.
type LoadOptions struct {
	// Backend is "artifact" (default) or "gemini".
	Backend string
	// ModelURI locates the artifact for the artifact backend.
	ModelURI string
	// GeminiModel names the Gemini model for the gemini backend.
	GeminiModel string
	// Labels restricts the gemini backend's answers.
	Labels []string
}

// LoadModel builds the configured classifier backend.
func LoadModel(ctx context.Context, opts LoadOptions) (Model, error) {
	switch strings.ToLower(opts.Backend) {
	case "", "artifact":
		m, err := LoadArtifact(ctx, opts.ModelURI)
		if err != nil {
			return nil, err
		}
		return m, nil
	case "gemini":
		if len(opts.Labels) == 0 {
			return nil, fmt.Errorf("LoadModel: gemini backend needs candidate labels")
		}
		m, err := NewGeminiModel(ctx, opts.GeminiModel, opts.Labels)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("LoadModel: unknown backend %q", opts.Backend)
	}
}
