package gcp

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// --- Extractor Model Prompts ---
const ExtractorSystemPrompt = "You are an expert e-commerce data extractor. You analyze social media captions from small sellers and extract structured product data. You must output your response as a single valid JSON object."
const ExtractorUserPrompt = `Analyze the Instagram caption below and extract:
- Product Name (short, descriptive)
- Price (numeric value only, in Chilean pesos)
- Size (if available)

Follow these rules precisely:
1.  Sellers often obfuscate brand names to dodge platform filters (e.g., "ni.ke", "a d i d a s", "z@ra"). Normalize any obfuscated brand token back to its canonical form ("Nike", "Adidas", "Zara").
2.  Prices are often abbreviated in thousands: a bare price token below 1000 (e.g., "5", "25", "12.5") means thousands of pesos, so multiply it by 1000. "25.000" and "25000" both mean 25000.
3.  If the price is missing or ambiguous, set "price": null. Do not guess.

Return ONLY valid JSON matching this schema:
{
  "productName": "string",
  "price": number | null,
  "size": "string | null"
}`

// --- Image Model Prompt ---
const RemoveBackgroundPrompt = "Isolate the product in this image and place it on a pure white background. Return the image in PNG format."

// VertexClient holds all pre-configured generative models for our app.
type VertexClient struct {
	ExtractorModel *genai.GenerativeModel
	ImageModel     *genai.GenerativeModel
	baseClient     *genai.Client
}

// NewVertexClient creates a new client holding all necessary models.
func NewVertexClient(ctx context.Context, projectID, region string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	// --- Configure the caption extractor model ---
	extractorModel := baseClient.GenerativeModel("gemini-2.5-flash")
	extractorModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(ExtractorSystemPrompt)},
	}
	extractorModel.GenerationConfig = genai.GenerationConfig{
		// Force JSON output. This is a critical setting for this model.
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}
	extractorModel.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	// --- Configure the product image model ---
	imageModel := baseClient.GenerativeModel("gemini-2.5-flash-image")

	return &VertexClient{
		ExtractorModel: extractorModel,
		ImageModel:     imageModel,
		baseClient:     baseClient,
	}, nil
}

// GenerateText submits a caption prompt to the extractor model and returns
// the raw text answer with any markdown fences stripped.
func (c *VertexClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := c.ExtractorModel.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content from gemini: %w", err)
	}
	return extractTextContent(resp), nil
}

// EditImage submits image bytes with the background-removal instruction and
// returns the generated image bytes and MIME type. A response without image
// data yields (nil, "", nil); the caller falls back to the source image.
func (c *VertexClient) EditImage(ctx context.Context, data []byte, mimeType string) ([]byte, string, error) {
	imagePart := genai.Blob{
		MIMEType: mimeType,
		Data:     data,
	}

	resp, err := c.ImageModel.GenerateContent(ctx, genai.Text(RemoveBackgroundPrompt), imagePart)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate image from gemini: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, "", nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if blob, ok := part.(genai.Blob); ok && len(blob.Data) > 0 {
			mime := blob.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			return blob.Data, mime, nil
		}
	}
	return nil, "", nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

// extractTextContent robustly gets the raw text content from a model response.
func extractTextContent(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}

	var content strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			content.WriteString(string(txt))
		}
	}

	// Clean potential markdown fences just in case.
	contentStr := strings.TrimSpace(content.String())
	contentStr = strings.TrimPrefix(contentStr, "```json")
	contentStr = strings.TrimPrefix(contentStr, "```")
	contentStr = strings.TrimSuffix(contentStr, "```")
	return strings.TrimSpace(contentStr)
}
