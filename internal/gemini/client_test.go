package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"render-studio/internal/imaging"
)

func testImage() imaging.SourceImage {
	return imaging.SourceImage{Base64: "aW1n", MimeType: "image/png", Width: 2, Height: 2}
}

func imageResponse(data string) generateContentResponse {
	return generateContentResponse{
		Candidates: []candidate{{
			Content: content{Parts: []part{
				{InlineData: &blob{Data: data, MimeType: "image/png"}},
			}},
		}},
	}
}

func textResponse(text string) generateContentResponse {
	return generateContentResponse{
		Candidates: []candidate{{
			Content: content{Parts: []part{{Text: text}}},
		}},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(Options{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	})
}

func TestEditImageSendsLabeledParts(t *testing.T) {
	var captured generateContentRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("api key header = %q", got)
		}
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatal(err)
		}
		_ = json.NewEncoder(w).Encode(imageResponse("cmVzdWx0"))
	})

	ref := testImage()
	result, err := client.EditImage(context.Background(), EditRequest{
		Source:    testImage(),
		Mask:      testImage(),
		Prompt:    "make the roof green",
		Reference: &ref,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(result, "data:image/png;base64,") {
		t.Errorf("result = %q, want data URL", result)
	}

	if len(captured.Contents) != 1 {
		t.Fatalf("contents len = %d", len(captured.Contents))
	}
	parts := captured.Contents[0].Parts

	var inline, labels int
	for _, p := range parts {
		if p.InlineData != nil {
			inline++
		}
		if strings.HasPrefix(p.Text, "Image #") {
			labels++
		}
	}
	if inline != 3 {
		t.Errorf("inline images = %d, want source+mask+reference", inline)
	}
	if labels != 3 {
		t.Errorf("image labels = %d, want 3", labels)
	}
	if captured.SystemInstruction == nil {
		t.Error("system instruction missing")
	}
	if !strings.Contains(parts[0].Text, "make the roof green") {
		t.Errorf("prompt missing from first part: %q", parts[0].Text)
	}
}

func TestEditImageRetriesWhenModelReturnsText(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_ = json.NewEncoder(w).Encode(textResponse("I cannot do that"))
			return
		}
		_ = json.NewEncoder(w).Encode(imageResponse("cmVzdWx0"))
	})

	result, err := client.EditImage(context.Background(), EditRequest{
		Source: testImage(),
		Mask:   testImage(),
		Prompt: "remove the car",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result == "" {
		t.Fatal("empty result after retry")
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestEditImageFailsAfterTwoTextResponses(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(textResponse("still no image"))
	})

	_, err := client.EditImage(context.Background(), EditRequest{
		Source: testImage(),
		Mask:   testImage(),
		Prompt: "remove the car",
	})
	if err == nil {
		t.Fatal("expected error when the model never returns an image")
	}
}

func TestEditImageSurfacesAPIErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "quota exceeded"}}`, http.StatusTooManyRequests)
	})

	_, err := client.EditImage(context.Background(), EditRequest{
		Source: testImage(),
		Mask:   testImage(),
		Prompt: "anything",
	})
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("err = %v, want API error body surfaced", err)
	}
}

func TestEditImageValidatesInputs(t *testing.T) {
	client := New(Options{APIKey: "k", HTTPClient: http.DefaultClient})

	if _, err := client.EditImage(context.Background(), EditRequest{
		Source: testImage(), Mask: testImage(),
	}); err == nil {
		t.Error("expected error for empty prompt")
	}

	if _, err := client.EditImage(context.Background(), EditRequest{
		Prompt: "x",
	}); err == nil {
		t.Error("expected error for missing images")
	}
}

func TestGenerateImageAspectRatioFallback(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req generateContentRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		if calls.Add(1) == 1 {
			if req.GenerationConfig.ImageConfig == nil {
				t.Error("first call should carry imageConfig")
			}
			http.Error(w, `Unknown name "imageConfig"`, http.StatusBadRequest)
			return
		}
		if req.GenerationConfig.ImageConfig != nil {
			t.Error("fallback call should drop imageConfig")
		}
		_ = json.NewEncoder(w).Encode(imageResponse("aW1n"))
	})

	images, err := client.GenerateImage(context.Background(), "a courtyard", "16:9")
	if err != nil {
		t.Fatal(err)
	}
	if len(images) != 1 {
		t.Fatalf("images = %d, want 1", len(images))
	}
}
