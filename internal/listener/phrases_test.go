package listener

import "testing"

func TestStripper(t *testing.T) {
	tests := []struct {
		name    string
		phrases []string
		text    string
		want    string
	}{
		{
			name:    "case insensitive, longest first",
			phrases: []string{"stop", "stop session"},
			text:    "please Stop Session now",
			want:    "please  now",
		},
		{
			name:    "keeps punctuation",
			phrases: []string{"porcupine", "stop session"},
			text:    "this is a test phrase. porcupine. stop session.",
			want:    "this is a test phrase. . .",
		},
		{
			name:    "every occurrence",
			phrases: []string{"over"},
			text:    "Over and over. OVER",
			want:    " and . ",
		},
		{
			name:    "no match leaves text alone",
			phrases: []string{"over", "goodbye"},
			text:    "What is the weather like?",
			want:    "What is the weather like?",
		},
		{
			name:    "regexp metacharacters are literal",
			phrases: []string{"end (now)"},
			text:    "that's all end (now)",
			want:    "that's all ",
		},
		{
			name:    "empty phrases ignored",
			phrases: []string{"", ""},
			text:    "unchanged",
			want:    "unchanged",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := NewStripper(tc.phrases...).Strip(tc.text); got != tc.want {
				t.Fatalf("Strip(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}

func TestContainsFold(t *testing.T) {
	tests := []struct {
		text, phrase string
		want         bool
	}{
		{" hello world done", "done", true},
		{" HELLO WORLD DONE", "done", true},
		{" hello", "done", false},
		{" anything", "", false},
	}
	for _, tc := range tests {
		if got := containsFold(tc.text, tc.phrase); got != tc.want {
			t.Errorf("containsFold(%q, %q) = %v, want %v", tc.text, tc.phrase, got, tc.want)
		}
	}
}

func TestListener_StripControlPhrases(t *testing.T) {
	l := &Listener{stripper: NewStripper("over", "goodbye")}
	if got := l.StripControlPhrases("Tell me a joke over. Goodbye"); got != "Tell me a joke . " {
		t.Fatalf("unexpected result %q", got)
	}
}
