package catalog

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"already canonical", "763A00-11330C00/A", "763A00-11330C00/A"},
		{"lowercase", "763a00-11330c00/a", "763A00-11330C00/A"},
		{"surrounding whitespace", "  763A00-11330C00/A\t", "763A00-11330C00/A"},
		{"internal spaces", "763A00 - 11330C00 / A", "763A00-11330C00/A"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFindPartNumber(t *testing.T) {
	tests := []struct {
		name      string
		message   string
		want      string
		wantFound bool
	}{
		{
			name:      "part number embedded in sentence",
			message:   "I need actuator 763A00-11330C00/A",
			want:      "763A00-11330C00/A",
			wantFound: true,
		},
		{
			name:      "lowercase part number",
			message:   "what about 764b00-11300000/a then",
			want:      "764B00-11300000/A",
			wantFound: true,
		},
		{
			name:      "free text requirement",
			message:   "I need high torque actuator",
			wantFound: false,
		},
		{
			name:      "dash-joined words are not codes",
			message:   "single-phase on-off actuator please",
			wantFound: false,
		},
		{
			name:      "voltage range is not a code",
			message:   "something for 220-240V mains",
			wantFound: false,
		},
		{
			name:      "bare attribute",
			message:   "single phase",
			wantFound: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := FindPartNumber(tt.message)
			if found != tt.wantFound {
				t.Fatalf("FindPartNumber(%q) found = %v, want %v", tt.message, found, tt.wantFound)
			}
			if found && got != tt.want {
				t.Errorf("FindPartNumber(%q) = %q, want %q", tt.message, got, tt.want)
			}
		})
	}
}

func TestSpecLabel(t *testing.T) {
	if got := SpecLabel("output_torque_nm"); got != "Output Torque (Nm)" {
		t.Errorf("curated label = %q", got)
	}
	if got := SpecLabel("gear_ratio"); got != "Gear Ratio" {
		t.Errorf("fallback label = %q", got)
	}
}
