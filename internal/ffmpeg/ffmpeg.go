// Package ffmpeg shells out to the ffmpeg and ffprobe binaries for
// single-frame extraction and subtitle stream access.
package ffmpeg

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	ffprobe "gopkg.in/vansante/go-ffprobe.v2"

	"stereo-media-server/internal/subs"
)

// frameSeekSeconds is how far into the stream frame extraction seeks
// before decoding, skipping leading blank or black frames.
const frameSeekSeconds = 1

// Runner invokes ffmpeg and ffprobe. It implements the frame-extractor
// and subtitle-demuxer contracts of the derivation components.
type Runner struct {
	ffmpegPath  string
	ffprobePath string
}

// New returns a Runner using the given binary paths. Empty paths fall
// back to "ffmpeg" and "ffprobe" on PATH.
func New(ffmpegPath, ffprobePath string) *Runner {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	ffprobe.SetFFProbeBinPath(ffprobePath)
	return &Runner{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// ExtractFrame seeks roughly one second into the video at path and
// returns the first frame that decodes, encoded as PNG.
func (r *Runner) ExtractFrame(ctx context.Context, path string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, r.ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-ss", strconv.Itoa(frameSeekSeconds),
		"-i", path,
		"-map", "0:v:0",
		"-frames:v", "1",
		"-f", "image2pipe",
		"-c:v", "png",
		"pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg frame grab: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg frame grab: no frame decoded")
	}
	return stdout.Bytes(), nil
}

// SubtitleStreams enumerates the embedded subtitle streams of the
// container at path.
func (r *Runner) SubtitleStreams(ctx context.Context, path string) ([]subs.Stream, error) {
	data, err := ffprobe.ProbeURL(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}

	var streams []subs.Stream
	for _, s := range data.Streams {
		if s == nil || s.CodecType != "subtitle" {
			continue
		}
		num, den := parseRational(s.TimeBase)
		streams = append(streams, subs.Stream{
			Index:       s.Index,
			Language:    s.Tags.Language,
			Title:       s.Tags.Title,
			Forced:      s.Disposition.Forced != 0,
			Default:     s.Disposition.Default != 0,
			TimeBaseNum: num,
			TimeBaseDen: den,
		})
	}
	return streams, nil
}

// probePacket mirrors one entry of ffprobe's -show_packets JSON.
// pts and duration are omitted by ffprobe when not available.
type probePacket struct {
	CodecType   string `json:"codec_type"`
	StreamIndex int    `json:"stream_index"`
	PTS         *int64 `json:"pts"`
	Duration    *int64 `json:"duration"`
	Data        string `json:"data"`
}

// SubtitlePackets demultiplexes every subtitle packet of the container
// at path, with raw payload bytes recovered from ffprobe's hex dump.
func (r *Runner) SubtitlePackets(ctx context.Context, path string) ([]subs.Packet, error) {
	cmd := exec.CommandContext(ctx, r.ffprobePath,
		"-hide_banner", "-loglevel", "error",
		"-select_streams", "s",
		"-show_packets",
		"-show_data",
		"-print_format", "json",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe packets: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var result struct {
		Packets []probePacket `json:"packets"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return nil, fmt.Errorf("ffprobe packets: %w", err)
	}

	packets := make([]subs.Packet, 0, len(result.Packets))
	for _, p := range result.Packets {
		if p.CodecType != "" && p.CodecType != "subtitle" {
			continue
		}
		pkt := subs.Packet{
			StreamIndex: p.StreamIndex,
			Data:        parseHexDump(p.Data),
		}
		if p.PTS != nil {
			pkt.PTS, pkt.HasPTS = *p.PTS, true
		}
		if p.Duration != nil {
			pkt.Duration, pkt.HasDuration = *p.Duration, true
		}
		packets = append(packets, pkt)
	}
	return packets, nil
}

// parseHexDump decodes ffprobe's packet data dump, which formats each
// line as "offset: " followed by a 40-column hex area and an ASCII
// column.
func parseHexDump(dump string) []byte {
	var out []byte
	for _, line := range strings.Split(dump, "\n") {
		idx := strings.Index(line, ": ")
		if idx < 0 {
			continue
		}
		area := line[idx+2:]
		if len(area) > 40 {
			area = area[:40]
		}
		compact := strings.ReplaceAll(area, " ", "")
		if len(compact)%2 != 0 {
			compact = compact[:len(compact)-1]
		}
		decoded, err := hex.DecodeString(compact)
		if err != nil {
			continue
		}
		out = append(out, decoded...)
	}
	return out
}

// parseRational parses a "num/den" time base. An unparseable input
// yields a zero denominator, which callers treat as unplaceable.
func parseRational(s string) (num, den int) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	n, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	d, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return 0, 0
	}
	return n, d
}
