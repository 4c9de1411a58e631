package subs

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeDemuxer struct {
	streams    []Stream
	packets    []Packet
	streamsErr error
	packetsErr error
}

func (f *fakeDemuxer) SubtitleStreams(context.Context, string) ([]Stream, error) {
	return f.streams, f.streamsErr
}

func (f *fakeDemuxer) SubtitlePackets(context.Context, string) ([]Packet, error) {
	return f.packets, f.packetsErr
}

func TestExtract_noStreams(t *testing.T) {
	e := NewExtractor(&fakeDemuxer{})
	tracks, err := e.Extract(context.Background(), "movie.mkv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tracks != nil {
		t.Errorf("expected absence, got %v", tracks)
	}
}

func TestExtract_allPacketsMissingDuration(t *testing.T) {
	dem := &fakeDemuxer{
		streams: []Stream{{Index: 0, Language: "eng", TimeBaseNum: 1, TimeBaseDen: 1000}},
		packets: []Packet{
			{StreamIndex: 0, PTS: 100, HasPTS: true, Data: []byte("one")},
			{StreamIndex: 0, PTS: 200, HasPTS: true, Data: []byte("two")},
		},
	}
	e := NewExtractor(dem)

	tracks, err := e.Extract(context.Background(), "movie.mkv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tracks != nil {
		t.Errorf("packets without durations cannot be placed; expected absence, got %v", tracks)
	}
}

func TestExtract_packetMissingPTSDropped(t *testing.T) {
	dem := &fakeDemuxer{
		streams: []Stream{{Index: 0, Language: "eng", TimeBaseNum: 1, TimeBaseDen: 1000}},
		packets: []Packet{
			{StreamIndex: 0, Duration: 500, HasDuration: true, Data: []byte("dropped")},
			{StreamIndex: 0, PTS: 1500, HasPTS: true, Duration: 500, HasDuration: true, Data: []byte("kept")},
		},
	}
	e := NewExtractor(dem)

	tracks, err := e.Extract(context.Background(), "movie.mkv")
	if err != nil || len(tracks) != 1 {
		t.Fatalf("tracks = %v err = %v, want one track", tracks, err)
	}
	if strings.Contains(tracks[0].VTT, "dropped") {
		t.Errorf("packet without pts must be dropped:\n%s", tracks[0].VTT)
	}
	if !strings.Contains(tracks[0].VTT, "kept") {
		t.Errorf("placeable packet missing:\n%s", tracks[0].VTT)
	}
}

func TestExtract_timeBaseConversion(t *testing.T) {
	dem := &fakeDemuxer{
		streams: []Stream{{Index: 0, Language: "eng", TimeBaseNum: 1, TimeBaseDen: 1000}},
		packets: []Packet{
			{StreamIndex: 0, PTS: 1500, HasPTS: true, Duration: 500, HasDuration: true, Data: []byte("Hi")},
		},
	}
	e := NewExtractor(dem)

	tracks, err := e.Extract(context.Background(), "movie.mkv")
	if err != nil || len(tracks) != 1 {
		t.Fatalf("tracks = %v err = %v", tracks, err)
	}
	if !strings.HasPrefix(tracks[0].VTT, "WEBVTT\n\n") {
		t.Errorf("missing WEBVTT header:\n%s", tracks[0].VTT)
	}
	if !strings.Contains(tracks[0].VTT, "00:00:01.500 --> 00:00:02.000") {
		t.Errorf("timestamps not converted via time base:\n%s", tracks[0].VTT)
	}
}

func TestExtract_assPayloadField(t *testing.T) {
	dem := &fakeDemuxer{
		streams: []Stream{{Index: 0, Language: "eng", TimeBaseNum: 1, TimeBaseDen: 1000}},
		packets: []Packet{
			{StreamIndex: 0, PTS: 0, HasPTS: true, Duration: 1000, HasDuration: true,
				Data: []byte("1,0,Default,,0,0,0,,Hello, world")},
			{StreamIndex: 0, PTS: 1000, HasPTS: true, Duration: 1000, HasDuration: true,
				Data: []byte("plain payload")},
		},
	}
	e := NewExtractor(dem)

	tracks, err := e.Extract(context.Background(), "movie.mkv")
	if err != nil || len(tracks) != 1 {
		t.Fatalf("tracks = %v err = %v", tracks, err)
	}
	vtt := tracks[0].VTT
	if !strings.Contains(vtt, "Hello, world") {
		t.Errorf("text after the 8th comma not extracted:\n%s", vtt)
	}
	if strings.Contains(vtt, "Default") {
		t.Errorf("style fields leaked into cue text:\n%s", vtt)
	}
	if !strings.Contains(vtt, "plain payload") {
		t.Errorf("whole-payload fallback missing:\n%s", vtt)
	}
}

func TestExtract_latin1Fallback(t *testing.T) {
	dem := &fakeDemuxer{
		streams: []Stream{{Index: 0, Language: "fre", TimeBaseNum: 1, TimeBaseDen: 1000}},
		packets: []Packet{
			// "café" in Latin-1; 0xE9 alone is invalid UTF-8.
			{StreamIndex: 0, PTS: 0, HasPTS: true, Duration: 1000, HasDuration: true,
				Data: []byte{'c', 'a', 'f', 0xE9}},
		},
	}
	e := NewExtractor(dem)

	tracks, err := e.Extract(context.Background(), "movie.mkv")
	if err != nil || len(tracks) != 1 {
		t.Fatalf("tracks = %v err = %v", tracks, err)
	}
	if !strings.Contains(tracks[0].VTT, "café") {
		t.Errorf("latin-1 payload not decoded:\n%s", tracks[0].VTT)
	}
}

func TestExtract_dispositionOrdering(t *testing.T) {
	dem := &fakeDemuxer{
		streams: []Stream{
			{Index: 2, Language: "eng", TimeBaseNum: 1, TimeBaseDen: 1000},
			{Index: 3, Language: "jpn", Forced: true, TimeBaseNum: 1, TimeBaseDen: 1000},
			{Index: 4, Language: "ger", Default: true, TimeBaseNum: 1, TimeBaseDen: 1000},
		},
		packets: []Packet{
			{StreamIndex: 2, PTS: 0, HasPTS: true, Duration: 1000, HasDuration: true, Data: []byte("english")},
			{StreamIndex: 3, PTS: 0, HasPTS: true, Duration: 1000, HasDuration: true, Data: []byte("japanese")},
			{StreamIndex: 4, PTS: 0, HasPTS: true, Duration: 1000, HasDuration: true, Data: []byte("german")},
		},
	}
	e := NewExtractor(dem)

	tracks, err := e.Extract(context.Background(), "movie.mkv")
	if err != nil || len(tracks) != 3 {
		t.Fatalf("tracks = %v err = %v, want 3 tracks", tracks, err)
	}

	wantTitles := []string{"01:jpn", "02:ger", "00:eng"}
	for i, want := range wantTitles {
		if tracks[i].Title != want {
			t.Errorf("track %d title = %q, want %q (forced, then default, then rest)", i, tracks[i].Title, want)
		}
	}
}

func TestExtract_streamTitleInLabel(t *testing.T) {
	dem := &fakeDemuxer{
		streams: []Stream{
			{Index: 0, Language: "eng", Title: "Commentary", TimeBaseNum: 1, TimeBaseDen: 1000},
		},
		packets: []Packet{
			{StreamIndex: 0, PTS: 0, HasPTS: true, Duration: 1000, HasDuration: true, Data: []byte("hi")},
		},
	}
	e := NewExtractor(dem)

	tracks, err := e.Extract(context.Background(), "movie.mkv")
	if err != nil || len(tracks) != 1 {
		t.Fatalf("tracks = %v err = %v", tracks, err)
	}
	if tracks[0].Title != "00:eng:Commentary" {
		t.Errorf("title = %q, want 00:eng:Commentary", tracks[0].Title)
	}
}

func TestExtract_unknownLanguageLabeledUnd(t *testing.T) {
	dem := &fakeDemuxer{
		streams: []Stream{{Index: 0, TimeBaseNum: 1, TimeBaseDen: 1000}},
		packets: []Packet{
			{StreamIndex: 0, PTS: 0, HasPTS: true, Duration: 1000, HasDuration: true, Data: []byte("hi")},
		},
	}
	e := NewExtractor(dem)

	tracks, _ := e.Extract(context.Background(), "movie.mkv")
	if len(tracks) != 1 || tracks[0].Title != "00:und" {
		t.Errorf("tracks = %v, want single 00:und track", tracks)
	}
}

func TestExtract_demuxerErrors(t *testing.T) {
	e := NewExtractor(&fakeDemuxer{streamsErr: errors.New("boom")})
	if _, err := e.Extract(context.Background(), "movie.mkv"); err == nil {
		t.Errorf("stream probe error should propagate")
	}

	e = NewExtractor(&fakeDemuxer{
		streams:    []Stream{{Index: 0, TimeBaseNum: 1, TimeBaseDen: 1000}},
		packetsErr: errors.New("boom"),
	})
	if _, err := e.Extract(context.Background(), "movie.mkv"); err == nil {
		t.Errorf("packet demux error should propagate")
	}
}
