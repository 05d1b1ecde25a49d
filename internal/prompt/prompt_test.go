package prompt

import (
	"strings"
	"testing"
)

func TestParseRenderType(t *testing.T) {
	cases := []struct {
		in   string
		want RenderType
	}{
		{"interior", RenderInterior},
		{"Floorplan", RenderFloorplan},
		{"  MASTERPLAN  ", RenderMasterplan},
		{"exterior", RenderExterior},
		{"", RenderExterior},
		{"something-else", RenderExterior},
	}
	for _, tc := range cases {
		if got := ParseRenderType(tc.in); got != tc.want {
			t.Errorf("ParseRenderType(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMaskedEditCarriesInstructionAndGuardrails(t *testing.T) {
	out := MaskedEdit("  replace the lawn with paving  ", RenderExterior, false)

	if !strings.Contains(out, "Edit request: replace the lawn with paving") {
		t.Errorf("instruction not trimmed and embedded:\n%s", out)
	}
	if !strings.Contains(out, "white region") {
		t.Errorf("mask confinement missing:\n%s", out)
	}
	if !strings.Contains(out, "black region must remain identical") {
		t.Errorf("preservation guardrail missing:\n%s", out)
	}
	if strings.Contains(out, "reference image") {
		t.Errorf("reference line present without a reference:\n%s", out)
	}
}

func TestMaskedEditRenderContexts(t *testing.T) {
	exterior := MaskedEdit("x", RenderExterior, false)
	interior := MaskedEdit("x", RenderInterior, false)

	if !strings.Contains(exterior, "exterior architectural render") {
		t.Errorf("exterior context missing:\n%s", exterior)
	}
	if !strings.Contains(interior, "interior render") {
		t.Errorf("interior context missing:\n%s", interior)
	}
	if exterior == interior {
		t.Error("render type did not change the prompt")
	}
}

func TestMaskedEditReferenceLine(t *testing.T) {
	out := MaskedEdit("x", RenderFloorplan, true)
	if !strings.Contains(out, "reference image") {
		t.Errorf("reference guidance missing:\n%s", out)
	}
}
