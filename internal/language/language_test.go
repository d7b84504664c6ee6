package language

import (
	"testing"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"en", "en", false},
		{"EN", "en", false},
		{"PT-br", "pt-BR", false},
		{"pt-BR", "pt-BR", false},
		{"zh-hans", "zh-Hans", false},
		{"portuguese", "pt", false},
		{"French", "fr", false},
		{"", "", true},
		{"   ", "", true},
		{"not a tag!", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := Canonicalize(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Canonicalize(%q) expected error, got %q", tt.input, result)
				}
				return
			}
			if err != nil {
				t.Fatalf("Canonicalize(%q) failed: %v", tt.input, err)
			}
			if result != tt.expected {
				t.Errorf("Canonicalize(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestSameBase(t *testing.T) {
	tests := []struct {
		a, b     string
		expected bool
	}{
		{"pt", "pt-BR", true},
		{"en-US", "en-GB", true},
		{"en", "fr", false},
		{"zh-Hans", "zh-Hant", true},
	}
	for _, tt := range tests {
		if got := SameBase(tt.a, tt.b); got != tt.expected {
			t.Errorf("SameBase(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.expected)
		}
	}
}

func TestToISO2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		// 2-letter codes pass through
		{"en", "en"},
		{"EN", "en"},
		{"es", "es"},
		// 3-letter codes convert
		{"eng", "en"},
		{"spa", "es"},
		{"fra", "fr"},
		{"fre", "fr"},
		{"deu", "de"},
		{"ger", "de"},
		{"jpn", "ja"},
		{"zho", "zh"},
		{"chi", "zh"},
		// Regioned tags reduce to base
		{"pt-BR", "pt"},
		{"en-US", "en"},
		// Word forms
		{"english", "en"},
		{"French", "fr"},
		{"GERMAN", "de"},
		// Unknown 2-letter passes through
		{"xy", "xy"},
		// Unknown 3-letter returns empty
		{"qqq", ""},
		// Empty
		{"", ""},
		{" ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ToISO2(tt.input)
			if result != tt.expected {
				t.Errorf("ToISO2(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestToISO3(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en", "eng"},
		{"es", "spa"},
		{"fr", "fra"},
		{"de", "deu"},
		{"zh", "zho"},
		{"eng", "eng"},
		{"spa", "spa"},
		{"xyz", "xyz"}, // unknown 3-letter passes through
		{"xy", "und"},  // unknown 2-letter becomes undefined
		{"", "und"},    // empty
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ToISO3(tt.input)
			if result != tt.expected {
				t.Errorf("ToISO3(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en", "English"},
		{"eng", "English"},
		{"es", "Spanish"},
		{"fr", "French"},
		{"fre", "French"},
		{"de", "German"},
		{"ger", "German"},
		{"ja", "Japanese"},
		{"zh", "Chinese"},
		{"chi", "Chinese"},
		{"nl", "Dutch"},
		{"dut", "Dutch"},
		{"", "Unknown"},
		{"xyz", "XYZ"},
		{"english", "English"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := DisplayName(tt.input)
			if result != tt.expected {
				t.Errorf("DisplayName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalizeList(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{"nil", nil, nil},
		{"empty", []string{}, nil},
		{"single", []string{"en"}, []string{"en"}},
		{"dedup", []string{"en", "en"}, []string{"en"}},
		{"normalize 3-letter", []string{"eng", "spa"}, []string{"en", "es"}},
		{"mixed", []string{"en", "eng", "fr", "fra"}, []string{"en", "fr"}},
		{"strips whitespace", []string{" en ", " "}, []string{"en"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeList(tt.input)
			if len(result) != len(tt.expected) {
				t.Fatalf("NormalizeList(%v) = %v, want %v", tt.input, result, tt.expected)
			}
			for i := range result {
				if result[i] != tt.expected[i] {
					t.Errorf("NormalizeList(%v)[%d] = %q, want %q", tt.input, i, result[i], tt.expected[i])
				}
			}
		})
	}
}
