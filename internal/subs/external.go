package subs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ExternalTitle labels caption tracks loaded from a sibling file.
const ExternalTitle = "External Subtitle"

// LoadExternal reads an external caption file and returns it as a
// WebVTT track. ".vtt" files pass through unchanged; ".srt" files are
// converted.
func LoadExternal(path string) (Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Track{}, fmt.Errorf("reading external captions: %w", err)
	}
	if strings.HasSuffix(strings.ToLower(path), ".srt") {
		vtt, err := ConvertSRT(data)
		if err != nil {
			return Track{}, err
		}
		return Track{Title: ExternalTitle, VTT: vtt}, nil
	}
	return Track{Title: ExternalTitle, VTT: string(data)}, nil
}

// ConvertSRT converts SubRip caption data to a WebVTT document.
// Malformed blocks are skipped; a file with no usable cue is an error.
func ConvertSRT(data []byte) (string, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimPrefix(text, "\ufeff")

	var cues []Cue
	for _, block := range strings.Split(text, "\n\n") {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) == 0 {
			continue
		}
		// Optional numeric counter line before the timing line.
		if _, err := strconv.Atoi(strings.TrimSpace(lines[0])); err == nil {
			lines = lines[1:]
		}
		if len(lines) < 2 || !strings.Contains(lines[0], "-->") {
			continue
		}
		timing := strings.SplitN(lines[0], "-->", 2)
		start, err1 := parseSRTTimestamp(timing[0])
		end, err2 := parseSRTTimestamp(timing[1])
		if err1 != nil || err2 != nil {
			continue
		}
		cues = append(cues, Cue{
			StartMS: start,
			EndMS:   end,
			Text:    strings.Join(lines[1:], "\n"),
		})
	}

	if len(cues) == 0 {
		return "", fmt.Errorf("no cues in srt data")
	}
	return FormatVTT(cues), nil
}

// parseSRTTimestamp parses "HH:MM:SS,mmm" (or with a dot) into
// milliseconds.
func parseSRTTimestamp(s string) (int64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("bad timestamp %q", s)
	}
	h, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, err
	}
	m, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, err
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, err
	}
	return h*3600000 + m*60000 + int64(sec*1000), nil
}
