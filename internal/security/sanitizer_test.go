package security

import "testing"

func TestSanitizeMessage(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "Plain text",
			input: "hello there",
			want:  "hello there",
		},
		{
			name:  "Surrounding whitespace",
			input: "  \n hi \t",
			want:  "hi",
		},
		{
			name:  "Null bytes",
			input: "h\x00i",
			want:  "hi",
		},
		{
			name:  "Markup stripped",
			input: "<b>bold</b> move",
			want:  "bold move",
		},
		{
			name:  "Script removed entirely",
			input: "<script>alert(1)</script>",
			want:  "",
		},
		{
			name:  "Heart survives",
			input: "I <3 you",
			want:  "I <3 you",
		},
		{
			name:  "Blank",
			input: "   ",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeMessage(tt.input); got != tt.want {
				t.Errorf("SanitizeMessage(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
