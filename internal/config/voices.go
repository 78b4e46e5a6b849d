package config

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Voice is one speaker of the Kokoro multi-lang v1.0 model.
type Voice struct {
	Name      string
	SpeakerID int
	Espeak    string // espeak-ng language code
	Language  string
}

// lexicon returns the lexicon file for the voice's accent.
func (v Voice) lexicon(ttsDir string) string {
	if v.Espeak == "en-gb" {
		return filepath.Join(ttsDir, "lexicon-gb-en.txt")
	}
	return filepath.Join(ttsDir, "lexicon-us-en.txt")
}

// Voices lists the English Kokoro voices in speaker-id order. The trigger
// phrases are matched by English recognizers, so only English speakers are
// offered.
var Voices = []Voice{
	{"af_alloy", 0, "en-us", "American English"},
	{"af_aoede", 1, "en-us", "American English"},
	{"af_bella", 2, "en-us", "American English"},
	{"af_heart", 3, "en-us", "American English"},
	{"af_jessica", 4, "en-us", "American English"},
	{"af_kore", 5, "en-us", "American English"},
	{"af_nicole", 6, "en-us", "American English"},
	{"af_nova", 7, "en-us", "American English"},
	{"af_river", 8, "en-us", "American English"},
	{"af_sarah", 9, "en-us", "American English"},
	{"af_sky", 10, "en-us", "American English"},
	{"am_adam", 11, "en-us", "American English"},
	{"am_echo", 12, "en-us", "American English"},
	{"am_eric", 13, "en-us", "American English"},
	{"am_fenrir", 14, "en-us", "American English"},
	{"am_liam", 15, "en-us", "American English"},
	{"am_michael", 16, "en-us", "American English"},
	{"am_onyx", 17, "en-us", "American English"},
	{"am_puck", 18, "en-us", "American English"},
	{"am_santa", 19, "en-us", "American English"},
	{"bf_alice", 20, "en-gb", "British English"},
	{"bf_emma", 21, "en-gb", "British English"},
	{"bf_isabella", 22, "en-gb", "British English"},
	{"bf_lily", 23, "en-gb", "British English"},
	{"bm_daniel", 24, "en-gb", "British English"},
	{"bm_fable", 25, "en-gb", "British English"},
	{"bm_george", 26, "en-gb", "British English"},
	{"bm_lewis", 27, "en-gb", "British English"},
}

// LookupVoice finds a voice by name, ignoring case.
func LookupVoice(name string) (Voice, bool) {
	for _, v := range Voices {
		if strings.EqualFold(v.Name, name) {
			return v, true
		}
	}
	return Voice{}, false
}

// PrintVoices writes the voice table grouped by accent.
func PrintVoices(w io.Writer) {
	fmt.Fprintf(w, "Kokoro voices (%d)\n", len(Voices))
	language := ""
	for _, v := range Voices {
		if v.Language != language {
			language = v.Language
			fmt.Fprintf(w, "\n── %s ──\n", language)
			fmt.Fprintf(w, "%-12s %-4s %s\n", "VOICE", "ID", "ESPEAK")
		}
		fmt.Fprintf(w, "%-12s %-4d %s\n", v.Name, v.SpeakerID, v.Espeak)
	}
	fmt.Fprintln(w, "\nUsage: vocalai -tts-voice bf_emma")
}

// PrintVoiceInfo writes the details of one voice.
func PrintVoiceInfo(w io.Writer, name string) error {
	v, ok := LookupVoice(name)
	if !ok {
		return fmt.Errorf("voice %q not found, run with -list-voices to see available voices", name)
	}
	fmt.Fprintf(w, "Voice:       %s\n", v.Name)
	fmt.Fprintf(w, "Speaker ID:  %d\n", v.SpeakerID)
	fmt.Fprintf(w, "Language:    %s\n", v.Language)
	fmt.Fprintf(w, "Espeak code: %s\n", v.Espeak)
	return nil
}
