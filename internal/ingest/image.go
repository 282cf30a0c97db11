package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// ImageNormalizer wraps the image-generation collaborator. It fetches the
// source image, asks the model to isolate the product on a white background,
// and uploads the result to the blob store. Every failure degrades: no model
// image means the original bytes are uploaded instead, and an upload failure
// returns the input URL untouched. The stage never fails outward.
type ImageNormalizer struct {
	editor     ImageEditor
	uploader   BlobUploader
	httpClient *http.Client
}

func NewImageNormalizer(editor ImageEditor, uploader BlobUploader) *ImageNormalizer {
	return &ImageNormalizer{
		editor:   editor,
		uploader: uploader,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Normalize returns a public URL for the product's normalized image.
// Worst case it is a no-op returning imageURL as-is.
func (n *ImageNormalizer) Normalize(ctx context.Context, imageURL, productLabel string) string {
	logCtx := slog.With("product", productLabel)

	data, contentType, err := n.fetch(ctx, imageURL)
	if err != nil {
		logCtx.Warn("Failed to fetch source image, keeping original URL.", "error", err, "url", imageURL)
		return imageURL
	}

	candidate := data
	candidateType := contentType
	if edited, editedType, err := n.editor.EditImage(ctx, data, contentType); err != nil {
		logCtx.Warn("Image model failed, using original image.", "error", err)
	} else if edited == nil {
		logCtx.Warn("Image model returned no image data, using original image.")
	} else {
		candidate = edited
		candidateType = editedType
	}

	// The source URL hash keeps object names unique across products that
	// share a label, and stable across re-runs of the same post.
	objectName := fmt.Sprintf("products/%s_%s%s", sanitizeLabel(productLabel), shortHash(imageURL), extensionFor(candidateType))
	publicURL, err := n.uploader.Upload(ctx, objectName, candidate, candidateType)
	if err != nil {
		logCtx.Warn("Failed to upload image, keeping original URL.", "error", err)
		return imageURL
	}

	return publicURL
}

func (n *ImageNormalizer) fetch(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("new request: %w", err)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, "", fmt.Errorf("fetch image: unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read image body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return data, contentType, nil
}

var nonAlphanumericRegex = regexp.MustCompile(`[^a-z0-9]+`)

// sanitizeLabel converts a product label into a safe object name component.
func sanitizeLabel(label string) string {
	lower := strings.ToLower(label)
	sanitized := nonAlphanumericRegex.ReplaceAllString(lower, "_")
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		sanitized = "product"
	}

	const maxLength = 100
	if len(sanitized) > maxLength {
		sanitized = strings.Trim(sanitized[:maxLength], "_")
	}
	return sanitized
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
