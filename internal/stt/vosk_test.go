package stt

import "testing"

func TestResultText(t *testing.T) {
	tests := []struct {
		name   string
		result string
		want   string
	}{
		{"plain", `{"text": "hello world"}`, "hello world"},
		{"with words", `{"result": [{"conf": 1.0, "word": "done"}], "text": "done"}`, "done"},
		{"padded", `{"text": "  stop  "}`, "stop"},
		{"silence", `{"text": ""}`, ""},
		{"garbage", `not json`, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := resultText(tc.result); got != tc.want {
				t.Fatalf("resultText(%s) = %q, want %q", tc.result, got, tc.want)
			}
		})
	}
}

func TestDebugFlag(t *testing.T) {
	if debugFlag(true) != 1 || debugFlag(false) != 0 {
		t.Fatalf("unexpected debug flag mapping")
	}
}
