package sanitize

import (
	"testing"
)

func TestProjectCode(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "AB12", "AB12"},
		{"dot and slash", "A.B/C", "A_B_C"},
		{"backslash and space", `A\B C`, "A_B_C"},
		{"symbols", "a&b^c*d%e#f@g!h?i~j", "a_b_c_d_e_f_g_h_i_j"},
		{"brackets", "x`{y}[z]", "x__y__z_"},
		{"operators", "p+q=r<s>t|u", "p_q_r_s_t_u"},
		{"dash and underscore kept", "AB-12_x", "AB-12_x"},
		{"surrounding whitespace trimmed", "  AB12\u200B ", "AB12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ProjectCode(tt.input); got != tt.expected {
				t.Errorf("ProjectCode(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Windows line endings (CRLF)", "line1\r\nline2", "line1\nline2"},
		{"Mac line endings (CR)", "line1\rline2", "line1\nline2"},
		{"Zero-width space", "front\u200Bwing", "frontwing"},
		{"BOM", "\uFEFFsweep", "sweep"},
		{"Multiple spaces and tabs", "front  wing\t\tsweep", "front wing sweep"},
		{"Blank lines", "a\n\n\nb", "a\nb"},
		{"Empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.input); got != tt.expected {
				t.Errorf("Text(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSanitizeField(t *testing.T) {
	if got := SanitizeField("  ALO\u00AD "); got != "ALO" {
		t.Errorf("SanitizeField() = %q", got)
	}
}
