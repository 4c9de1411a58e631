// Package subs extracts embedded caption streams from local video
// containers into timed-text tracks.
package subs

import "context"

// Stream describes one embedded subtitle stream.
type Stream struct {
	Index    int    // container stream index
	Language string // ISO language tag, "" if unknown
	Title    string // optional display title
	Forced   bool
	Default  bool

	// Time base of the stream's timestamps, as a rational
	// TimeBaseNum/TimeBaseDen seconds per tick.
	TimeBaseNum int
	TimeBaseDen int
}

// Packet is one demultiplexed subtitle packet. PTS and Duration are in
// stream time-base ticks; a packet missing either cannot be placed on
// a timeline.
type Packet struct {
	StreamIndex int
	PTS         int64
	HasPTS      bool
	Duration    int64
	HasDuration bool
	Data        []byte
}

// Demuxer provides access to a container's subtitle streams and
// packets.
type Demuxer interface {
	SubtitleStreams(ctx context.Context, path string) ([]Stream, error)
	SubtitlePackets(ctx context.Context, path string) ([]Packet, error)
}

// Track is one serialized timed-text track.
type Track struct {
	Title string `json:"title"`
	VTT   string `json:"vtt"`
}

// Cue is a single timed caption.
type Cue struct {
	StartMS int64
	EndMS   int64
	Text    string
}
