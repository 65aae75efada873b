package speech

import "strings"

// TranscriptOptions controls how recognizer responses are rendered as text.
type TranscriptOptions struct {
	// SpeakerNames maps diarization labels (e.g. "1", "2") to display names.
	// Unmapped labels are rendered as-is; segments with no speaker metadata
	// at all fall back to "Speaker".
	SpeakerNames map[string]string
}

const defaultSpeakerName = "Speaker"

// ExtractTranscript normalizes a recognizer response into a single transcript
// string. The recognizer returns one of several shapes depending on the
// request mode, so the matchers are tried in order, first match wins:
//
//  1. diarized segments -> "<speaker>: <text>" lines
//  2. top-level "text"
//  3. nested "result.text"
//  4. segments without speaker metadata, joined by spaces
//
// Malformed-but-parseable responses never fail; the result is simply "".
func ExtractTranscript(resp map[string]any, opts TranscriptOptions) string {
	if s, ok := diarizedDialogue(resp, opts); ok {
		return s
	}
	if s, ok := stringField(resp, "text"); ok {
		return strings.TrimSpace(s)
	}
	if s, ok := nestedResultText(resp); ok {
		return strings.TrimSpace(s)
	}
	if s, ok := joinedSegments(resp); ok {
		return s
	}
	return ""
}

// diarizedDialogue matches when at least one segment carries usable speaker
// metadata. Segments missing a label still get a line, attributed to the
// generic speaker name.
func diarizedDialogue(resp map[string]any, opts TranscriptOptions) (string, bool) {
	segs, ok := segments(resp)
	if !ok {
		return "", false
	}

	diarized := false
	for _, seg := range segs {
		if speakerLabel(seg) != "" {
			diarized = true
			break
		}
	}
	if !diarized {
		return "", false
	}

	var lines []string
	for _, seg := range segs {
		text := segmentText(seg)
		if text == "" {
			continue
		}
		name := defaultSpeakerName
		if label := speakerLabel(seg); label != "" {
			name = label
			if mapped, ok := opts.SpeakerNames[label]; ok {
				name = mapped
			}
		}
		lines = append(lines, name+": "+text)
	}
	if len(lines) == 0 {
		return "", false
	}
	return strings.Join(lines, "\n"), true
}

func joinedSegments(resp map[string]any) (string, bool) {
	segs, ok := segments(resp)
	if !ok {
		return "", false
	}
	var texts []string
	for _, seg := range segs {
		if t := segmentText(seg); t != "" {
			texts = append(texts, t)
		}
	}
	if len(texts) == 0 {
		return "", false
	}
	return strings.Join(texts, " "), true
}

func segments(resp map[string]any) ([]map[string]any, bool) {
	raw, ok := resp["segments"].([]any)
	if !ok || len(raw) == 0 {
		return nil, false
	}
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if seg, ok := item.(map[string]any); ok {
			out = append(out, seg)
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// segmentText prefers the human-corrected textEdited field over the raw
// recognition result.
func segmentText(seg map[string]any) string {
	if s, ok := stringField(seg, "textEdited"); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	if s, ok := stringField(seg, "text"); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func speakerLabel(seg map[string]any) string {
	speaker, ok := seg["speaker"].(map[string]any)
	if !ok {
		return ""
	}
	if s, ok := stringField(speaker, "name"); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	if s, ok := stringField(speaker, "label"); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	return ""
}

func nestedResultText(resp map[string]any) (string, bool) {
	result, ok := resp["result"].(map[string]any)
	if !ok {
		return "", false
	}
	return stringField(result, "text")
}

func stringField(m map[string]any, key string) (string, bool) {
	s, ok := m[key].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
