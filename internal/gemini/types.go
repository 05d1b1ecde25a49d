package gemini

import "render-studio/internal/imaging"

// EditRequest carries one masked edit round-trip: the source image, the
// strict binary mask confining the edit, the user's instruction, and an
// optional style/content reference.
type EditRequest struct {
	Source    imaging.SourceImage
	Mask      imaging.SourceImage
	Prompt    string
	Reference *imaging.SourceImage
}

type generateContentRequest struct {
	Contents          []content        `json:"contents"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	Temperature        float64      `json:"temperature,omitempty"`
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

type generateContentResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content content `json:"content"`
}
