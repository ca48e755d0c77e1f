package matcher

import "testing"

func TestParseLine(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		common string
		latin  string
		single bool
	}{
		{
			name:   "single token",
			line:   "brown creeper",
			common: "brown creeper",
			latin:  "brown creeper",
			single: true,
		},
		{
			name:   "common latin pair",
			line:   "weasel, mustela erminea",
			common: "weasel",
			latin:  "mustela erminea",
		},
		{
			name:   "whitespace trimmed",
			line:   "  gray jay ,  perisoreus canadensis  ",
			common: "gray jay",
			latin:  "perisoreus canadensis",
		},
		{
			name:   "extra fields ignored",
			line:   "stoat, mustela erminea, seen near creek",
			common: "stoat",
			latin:  "mustela erminea",
		},
		{
			name: "empty line",
			line: "   ",
		},
		{
			name:   "dangling comma",
			line:   "stoat,",
			common: "stoat",
			latin:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := ParseLine(tt.line)
			if q.Raw != tt.line {
				t.Fatalf("Raw = %q, want %q", q.Raw, tt.line)
			}
			if q.Common != tt.common {
				t.Fatalf("Common = %q, want %q", q.Common, tt.common)
			}
			if q.Latin != tt.latin {
				t.Fatalf("Latin = %q, want %q", q.Latin, tt.latin)
			}
			if q.Single != tt.single {
				t.Fatalf("Single = %v, want %v", q.Single, tt.single)
			}
		})
	}
}

func TestParseLineNeverFails(t *testing.T) {
	// Parsing cannot reject input, only produce a best-effort query.
	for _, line := range []string{"", ",", ",,,", "???", "a, b, c, d, e"} {
		_ = ParseLine(line)
	}
}
