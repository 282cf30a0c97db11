package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/vitrina-app/vitrina/internal/gcp"
	"github.com/vitrina-app/vitrina/internal/models"
)

// ProductExtractor wraps the text-extraction collaborator with a fixed
// contract: caption in, validated ExtractedFields out. Any collaborator
// error, parse failure, or missing price is treated as "no product found";
// nothing raises past this boundary.
type ProductExtractor struct {
	generator TextGenerator
}

func NewProductExtractor(generator TextGenerator) *ProductExtractor {
	return &ProductExtractor{generator: generator}
}

// Extract returns the structured product data found in the caption, or nil
// when the caption yields no usable product. An item is usable only if its
// price is a finite number.
func (e *ProductExtractor) Extract(ctx context.Context, caption string) *models.ExtractedFields {
	if strings.TrimSpace(caption) == "" {
		return nil
	}

	prompt := fmt.Sprintf("%s\n\nCaption: %q", gcp.ExtractorUserPrompt, caption)

	answer, err := e.generator.GenerateText(ctx, prompt)
	if err != nil {
		slog.Error("Caption extraction call failed", "error", err)
		return nil
	}

	jsonString := stripFences(answer)
	if jsonString == "" {
		slog.Warn("Caption extraction returned an empty answer.")
		return nil
	}

	var extracted models.ExtractedFields
	if err := json.Unmarshal([]byte(jsonString), &extracted); err != nil {
		slog.Error("Failed to parse extraction answer", "error", err, "answer", jsonString)
		return nil
	}

	if extracted.Price == nil || math.IsNaN(*extracted.Price) || math.IsInf(*extracted.Price, 0) {
		return nil
	}
	return &extracted
}

// stripFences removes surrounding markdown code fences from a model answer
// so the remainder parses as JSON.
func stripFences(answer string) string {
	cleaned := strings.TrimSpace(answer)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}
