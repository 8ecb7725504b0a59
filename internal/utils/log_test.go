package utils

import "testing"

func TestTruncateForLog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{name: "disabled preview", in: "Tell me about goroutines", limit: 0, want: ""},
		{name: "negative limit", in: "answer", limit: -3, want: ""},
		{name: "fits exactly", in: "channels", limit: 8, want: "channels"},
		{name: "long answer is cut", in: "I would use a worker pool with a buffered channel", limit: 13, want: "I would use a..."},
		{name: "counts runes not bytes", in: "Привет, мир", limit: 6, want: "Привет..."},
		{name: "whitespace around model output", in: "\n```json {}```\n", limit: 7, want: "```json..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := TruncateForLog(tt.in, tt.limit); got != tt.want {
				t.Fatalf("TruncateForLog(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
			}
		})
	}
}
