package subs

import (
	"fmt"
	"strings"
)

// FormatVTT serializes cues as a WebVTT document.
func FormatVTT(cues []Cue) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, cue := range cues {
		b.WriteString(vttTimestamp(cue.StartMS))
		b.WriteString(" --> ")
		b.WriteString(vttTimestamp(cue.EndMS))
		b.WriteByte('\n')
		b.WriteString(cue.Text)
		b.WriteString("\n\n")
	}
	return b.String()
}

func vttTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	h := ms / 3600000
	m := ms / 60000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms%1000)
}
