package prompt

import (
	"fmt"
	"strings"
)

// RenderType identifies what kind of architectural image is being edited,
// which steers the guidance wrapped around the user's instruction.
type RenderType string

const (
	RenderExterior   RenderType = "exterior"
	RenderInterior   RenderType = "interior"
	RenderFloorplan  RenderType = "floorplan"
	RenderMasterplan RenderType = "masterplan"
)

var renderContexts = map[RenderType]string{
	RenderExterior:   "The source is an exterior architectural render. Keep building massing, site context, and sky conditions outside the mask untouched.",
	RenderInterior:   "The source is an interior render. Preserve room geometry, furniture, and light sources outside the mask.",
	RenderFloorplan:  "The source is a floorplan drawing. Keep line weights, hatching, and annotations outside the mask exactly as drawn.",
	RenderMasterplan: "The source is a masterplan. Preserve roads, parcel boundaries, and labeling outside the mask.",
}

// ParseRenderType maps a request string onto a known render type, defaulting
// to exterior for anything unrecognized.
func ParseRenderType(s string) RenderType {
	switch RenderType(strings.ToLower(strings.TrimSpace(s))) {
	case RenderInterior:
		return RenderInterior
	case RenderFloorplan:
		return RenderFloorplan
	case RenderMasterplan:
		return RenderMasterplan
	default:
		return RenderExterior
	}
}

// MaskedEdit wraps the user's instruction with the guardrails the edit model
// needs: confinement to the white mask region and, when present, how to use
// the reference image.
func MaskedEdit(instruction string, renderType RenderType, hasReference bool) string {
	var lines []string

	lines = append(lines, fmt.Sprintf("Edit request: %s", strings.TrimSpace(instruction)))

	if ctx, ok := renderContexts[renderType]; ok {
		lines = append(lines, ctx)
	}

	lines = append(lines,
		"Apply the edit only inside the white region of the provided mask.",
		"Every pixel in the black region must remain identical to the source image.",
		"Blend the edited region naturally: match lighting direction, shadows, perspective, and color grading.",
	)

	if hasReference {
		lines = append(lines, "Use the reference image to guide the style, materials, or content of the edited region only.")
	}

	return strings.Join(lines, "\n")
}
