package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"render-studio/internal/imaging"
)

const defaultImageModel = "gemini-2.5-flash-image"

const systemInstruction = `You are a precise architectural image editor.
You receive a source render, a binary mask, and an instruction.
White mask pixels mark the only region you may change; black pixels must be
returned pixel-identical to the source. Match the source's lighting,
perspective, and materials so the edit blends seamlessly.`

type Options struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	ImageModel string
	// RatePerMinute caps outbound generateContent calls; zero disables the cap.
	RatePerMinute int
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

type Client struct {
	apiKey     string
	baseURL    string
	apiVersion string
	imageModel string
	limiter    *rate.Limiter
	httpClient *http.Client
	logger     *slog.Logger
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}

	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "v1beta"
	}

	imageModel := strings.TrimSpace(opts.ImageModel)
	if imageModel == "" {
		imageModel = defaultImageModel
	}

	var limiter *rate.Limiter
	if opts.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(opts.RatePerMinute)/60), 1)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		apiKey:     opts.APIKey,
		baseURL:    baseURL,
		apiVersion: apiVersion,
		imageModel: imageModel,
		limiter:    limiter,
		httpClient: opts.HTTPClient,
		logger:     logger,
	}
}

// EditImage submits a masked edit and returns the result as a data URL.
// If the model answers with text instead of an image, one retry is made with
// a firmer instruction before giving up.
func (c *Client) EditImage(ctx context.Context, req EditRequest) (string, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", errors.New("prompt is empty")
	}
	if req.Source.IsZero() || req.Mask.IsZero() {
		return "", errors.New("source and mask images are required")
	}

	payload := generateContentRequest{
		Contents:          []content{{Role: "user", Parts: editParts(req, prompt)}},
		SystemInstruction: &content{Role: "user", Parts: []part{{Text: systemInstruction}}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"IMAGE"},
		},
	}

	images, err := c.generateImages(ctx, payload)
	if err != nil {
		return "", err
	}

	if len(images) == 0 {
		retry := prompt + "\n\nReturn only the edited image as inlineData. Do not reply with text, JSON, or code."
		payload.Contents = []content{{Role: "user", Parts: editParts(req, retry)}}
		images, err = c.generateImages(ctx, payload)
		if err != nil {
			return "", err
		}
	}

	if len(images) == 0 {
		return "", errors.New("model returned no image")
	}
	return images[0], nil
}

// GenerateImage produces a fresh image from a text prompt alone.
func (c *Client) GenerateImage(ctx context.Context, prompt, aspectRatio string) ([]string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, errors.New("prompt is empty")
	}

	payload := generateContentRequest{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: prompt}}},
		},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"IMAGE"},
		},
	}
	if aspectRatio != "" {
		payload.GenerationConfig.ImageConfig = &imageConfig{AspectRatio: aspectRatio}
	}

	images, err := c.generateImages(ctx, payload)
	if err != nil && payload.GenerationConfig.ImageConfig != nil && isUnknownFieldError(err, "imageConfig") {
		payload.GenerationConfig.ImageConfig = nil
		images, err = c.generateImages(ctx, payload)
	}
	return images, err
}

func editParts(req EditRequest, prompt string) []part {
	parts := []part{
		{Text: prompt},
		{Text: "Image #1 (source to edit):"},
		{InlineData: &blob{Data: req.Source.Base64, MimeType: req.Source.MimeType}},
		{Text: "Image #2 (binary mask; edit only the white region):"},
		{InlineData: &blob{Data: req.Mask.Base64, MimeType: req.Mask.MimeType}},
	}

	if req.Reference != nil && !req.Reference.IsZero() {
		parts = append(parts,
			part{Text: "Image #3 (style/content reference for the edited region):"},
			part{InlineData: &blob{Data: req.Reference.Base64, MimeType: req.Reference.MimeType}},
		)
	}
	return parts
}

func (c *Client) generateImages(ctx context.Context, payload generateContentRequest) ([]string, error) {
	if c.httpClient == nil {
		return nil, errors.New("http client is nil")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", c.baseURL, c.apiVersion, c.imageModel)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer httpResp.Body.Close()

	rawBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode >= 400 {
		return nil, fmt.Errorf("gemini API %s: %s", httpResp.Status, strings.TrimSpace(string(rawBody)))
	}

	var decoded generateContentResponse
	if err := json.Unmarshal(rawBody, &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return extractImages(decoded), nil
}

func extractImages(resp generateContentResponse) []string {
	if len(resp.Candidates) == 0 {
		return nil
	}

	var images []string
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.InlineData != nil && p.InlineData.Data != "" && p.InlineData.MimeType != "" {
			images = append(images, imaging.SourceImage{
				Base64:   p.InlineData.Data,
				MimeType: p.InlineData.MimeType,
			}.DataURL())
		}
	}
	return images
}

func isUnknownFieldError(err error, field string) bool {
	message := err.Error()
	return strings.Contains(message, "Unknown name") && strings.Contains(message, field)
}
