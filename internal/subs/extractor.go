package subs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Extractor builds timed-text tracks from a container's embedded
// subtitle streams.
type Extractor struct {
	dem Demuxer
}

// NewExtractor returns an Extractor backed by dem.
func NewExtractor(dem Demuxer) *Extractor {
	return &Extractor{dem: dem}
}

// Extract demultiplexes every subtitle stream of the container at path
// and returns one track per stream that produced at least one cue,
// highest-priority stream first. A container with no subtitle streams,
// or whose streams yield no placeable cues, returns (nil, nil): absence
// is indistinguishable from "no embedded streams" by design.
func (e *Extractor) Extract(ctx context.Context, path string) ([]Track, error) {
	streams, err := e.dem.SubtitleStreams(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("probing subtitle streams: %w", err)
	}
	if len(streams) == 0 {
		return nil, nil
	}

	byIndex := make(map[int]*Stream, len(streams))
	cues := make(map[int][]Cue, len(streams))
	for i := range streams {
		byIndex[streams[i].Index] = &streams[i]
	}

	packets, err := e.dem.SubtitlePackets(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("demuxing subtitle packets: %w", err)
	}

	for _, pkt := range packets {
		stream, ok := byIndex[pkt.StreamIndex]
		if !ok {
			continue
		}
		// A packet without both a timestamp and a duration cannot be
		// placed on the timeline.
		if !pkt.HasPTS || !pkt.HasDuration {
			continue
		}
		if stream.TimeBaseDen == 0 {
			continue
		}

		startMS := pkt.PTS * 1000 * int64(stream.TimeBaseNum) / int64(stream.TimeBaseDen)
		durMS := pkt.Duration * 1000 * int64(stream.TimeBaseNum) / int64(stream.TimeBaseDen)

		text := strings.TrimSpace(payloadText(pkt.Data))
		if text == "" {
			continue
		}
		cues[pkt.StreamIndex] = append(cues[pkt.StreamIndex], Cue{
			StartMS: startMS,
			EndMS:   startMS + durMS,
			Text:    text,
		})
	}

	// Priority order for the returned tracks: forced +2, default +1.
	ordered := make([]Stream, len(streams))
	copy(ordered, streams)
	sort.SliceStable(ordered, func(i, j int) bool {
		return priorityScore(ordered[i]) > priorityScore(ordered[j])
	})

	var tracks []Track
	for _, stream := range ordered {
		streamCues := cues[stream.Index]
		if len(streamCues) == 0 {
			continue
		}
		tracks = append(tracks, Track{
			Title: trackTitle(indexOf(streams, stream.Index), stream),
			VTT:   FormatVTT(streamCues),
		})
	}
	if len(tracks) == 0 {
		return nil, nil
	}
	return tracks, nil
}

func priorityScore(s Stream) int {
	score := 0
	if s.Forced {
		score += 2
	}
	if s.Default {
		score++
	}
	return score
}

// trackTitle labels a track with the zero-padded ordinal of the stream
// among the subtitle streams, its language, and optional title.
func trackTitle(ordinal int, s Stream) string {
	lang := s.Language
	if lang == "" {
		lang = "und"
	}
	if s.Title != "" {
		return fmt.Sprintf("%02d:%s:%s", ordinal, lang, s.Title)
	}
	return fmt.Sprintf("%02d:%s", ordinal, lang)
}

func indexOf(streams []Stream, containerIndex int) int {
	for i, s := range streams {
		if s.Index == containerIndex {
			return i
		}
	}
	return 0
}

// payloadText extracts the display text from a subtitle packet. For
// the ASS packet encoding (ReadOrder,Layer,Style,Name,MarginL,MarginR,
// MarginV,Effect,Text) the text is the field after the 8th comma; any
// other shape falls back to the whole payload. Bytes that are not
// valid UTF-8 are decoded as Latin-1.
func payloadText(data []byte) string {
	var text string
	if utf8.Valid(data) {
		text = string(data)
	} else {
		runes := make([]rune, len(data))
		for i, b := range data {
			runes[i] = rune(b)
		}
		text = string(runes)
	}

	parts := strings.SplitN(text, ",", 9)
	if len(parts) == 9 {
		return parts[8]
	}
	return text
}
