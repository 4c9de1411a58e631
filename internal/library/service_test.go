package library

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/zip"

	"stereo-media-server/internal/cache"
	"stereo-media-server/internal/subs"
	"stereo-media-server/internal/vfs"
	"stereo-media-server/internal/workpool"
)

// countingThumbs is a ThumbnailGenerator returning fixed bytes, with
// call counting to assert how many times decoding actually ran.
type countingThumbs struct {
	imageCalls int64
	videoCalls int64
	err        error
}

func (c *countingThumbs) FromImage(data []byte, format vfs.StereoFormat) ([]byte, error) {
	atomic.AddInt64(&c.imageCalls, 1)
	if c.err != nil {
		return nil, c.err
	}
	return []byte("webp-bytes"), nil
}

func (c *countingThumbs) FromVideo(ctx context.Context, path string, format vfs.StereoFormat) ([]byte, error) {
	atomic.AddInt64(&c.videoCalls, 1)
	if c.err != nil {
		return nil, c.err
	}
	return []byte("webp-bytes"), nil
}

type countingSubs struct {
	calls  int64
	tracks []subs.Track
	err    error
}

func (c *countingSubs) Extract(ctx context.Context, path string) ([]subs.Track, error) {
	atomic.AddInt64(&c.calls, 1)
	return c.tracks, c.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRoot builds a media tree with a still image, a video with a
// vtt caption sibling, and an archive holding one image member.
func newTestRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	if err := os.WriteFile(filepath.Join(root, "a_SBS.png"), []byte("not-really-png"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "movie.mkv"), []byte("not-really-mkv"), 0o644); err != nil {
		t.Fatal(err)
	}
	vtt := "WEBVTT\n\n00:00:01.000 --> 00:00:02.000\nexternal cue\n"
	if err := os.WriteFile(filepath.Join(root, "movie.vtt"), []byte(vtt), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("inner/pic_SBS.png")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte("member-bytes")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "lib.zip"), buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

func newTestService(t *testing.T, root string, tg ThumbnailGenerator, se SubtitleExtractor) *Service {
	t.Helper()
	store, err := cache.Open(t.TempDir(), 64<<20)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return NewService(root, store, tg, se, workpool.New(2), discardLogger(), nil)
}

func TestThumbnail_secondRequestServedFromCache(t *testing.T) {
	root := newTestRoot(t)
	tg := &countingThumbs{}
	svc := newTestService(t, root, tg, &countingSubs{})

	token := svc.ThumbnailToken("/a_SBS.png")
	ctx := context.Background()

	first, err := svc.Thumbnail(ctx, "/a_SBS.png", token)
	if err != nil || first == nil {
		t.Fatalf("first request: data = %v err = %v", first, err)
	}
	second, err := svc.Thumbnail(ctx, "/a_SBS.png", token)
	if err != nil || !bytes.Equal(first, second) {
		t.Fatalf("second request: data = %v err = %v", second, err)
	}
	if got := atomic.LoadInt64(&tg.imageCalls); got != 1 {
		t.Errorf("generator ran %d times, want exactly 1", got)
	}
}

func TestThumbnail_video(t *testing.T) {
	root := newTestRoot(t)
	tg := &countingThumbs{}
	svc := newTestService(t, root, tg, &countingSubs{})

	token := svc.ThumbnailToken("/movie.mkv")
	data, err := svc.Thumbnail(context.Background(), "/movie.mkv", token)
	if err != nil || data == nil {
		t.Fatalf("data = %v err = %v", data, err)
	}
	if tg.videoCalls != 1 || tg.imageCalls != 0 {
		t.Errorf("video=%d image=%d, want the video path", tg.videoCalls, tg.imageCalls)
	}
}

func TestThumbnail_archiveMember(t *testing.T) {
	root := newTestRoot(t)
	tg := &countingThumbs{}
	svc := newTestService(t, root, tg, &countingSubs{})

	vpath := "/lib.zip/inner/pic_SBS.png"
	token := svc.ThumbnailToken(vpath)
	data, err := svc.Thumbnail(context.Background(), vpath, token)
	if err != nil || data == nil {
		t.Fatalf("data = %v err = %v", data, err)
	}
	if tg.imageCalls != 1 {
		t.Errorf("image generator ran %d times, want 1", tg.imageCalls)
	}
}

func TestThumbnail_decodeFailureNotCached(t *testing.T) {
	root := newTestRoot(t)
	tg := &countingThumbs{err: errors.New("bad pixels")}
	svc := newTestService(t, root, tg, &countingSubs{})

	token := svc.ThumbnailToken("/a_SBS.png")
	ctx := context.Background()

	data, err := svc.Thumbnail(ctx, "/a_SBS.png", token)
	if err != nil || data != nil {
		t.Fatalf("decode failure should yield nil, nil; got %v, %v", data, err)
	}
	// Nothing cached: the next request retries the decode.
	if _, err := svc.Thumbnail(ctx, "/a_SBS.png", token); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt64(&tg.imageCalls); got != 2 {
		t.Errorf("generator ran %d times, want a retry on each request", got)
	}
}

func TestThumbnail_errorTaxonomy(t *testing.T) {
	root := newTestRoot(t)
	svc := newTestService(t, root, &countingThumbs{}, &countingSubs{})
	ctx := context.Background()

	if _, err := svc.Thumbnail(ctx, "/missing.png", svc.ThumbnailToken("/missing.png")); !errors.Is(err, vfs.ErrNotFound) {
		t.Errorf("missing file: err = %v, want ErrNotFound", err)
	}
	if _, err := svc.Thumbnail(ctx, "/../etc/passwd", svc.ThumbnailToken("/../etc/passwd")); !errors.Is(err, vfs.ErrAccessDenied) {
		t.Errorf("escaping path: err = %v, want ErrAccessDenied", err)
	}
}

func TestSubtitles_externalFirstThenEmbedded(t *testing.T) {
	root := newTestRoot(t)
	se := &countingSubs{tracks: []subs.Track{{Title: "00:eng", VTT: "WEBVTT\n"}}}
	svc := newTestService(t, root, &countingThumbs{}, se)

	token := svc.SubtitleToken("/movie.mkv")
	tracks, err := svc.Subtitles(context.Background(), "/movie.mkv", token)
	if err != nil {
		t.Fatal(err)
	}
	if len(tracks) != 2 {
		t.Fatalf("got %d tracks, want external + embedded", len(tracks))
	}
	if tracks[0].Title != subs.ExternalTitle {
		t.Errorf("first track = %q, want the external sibling", tracks[0].Title)
	}
	if tracks[1].Title != "00:eng" {
		t.Errorf("second track = %q, want the embedded one", tracks[1].Title)
	}
}

func TestSubtitles_embeddedServedFromCache(t *testing.T) {
	root := newTestRoot(t)
	se := &countingSubs{tracks: []subs.Track{{Title: "00:eng", VTT: "WEBVTT\n"}}}
	svc := newTestService(t, root, &countingThumbs{}, se)

	token := svc.SubtitleToken("/movie.mkv")
	ctx := context.Background()
	if _, err := svc.Subtitles(ctx, "/movie.mkv", token); err != nil {
		t.Fatal(err)
	}
	tracks, err := svc.Subtitles(ctx, "/movie.mkv", token)
	if err != nil || len(tracks) != 2 {
		t.Fatalf("tracks = %v err = %v", tracks, err)
	}
	if got := atomic.LoadInt64(&se.calls); got != 1 {
		t.Errorf("extractor ran %d times, want exactly 1", got)
	}
}

func TestSubtitles_extractionFailureDegradesToAbsence(t *testing.T) {
	root := newTestRoot(t)
	se := &countingSubs{err: errors.New("unreadable container")}
	svc := newTestService(t, root, &countingThumbs{}, se)

	tracks, err := svc.Subtitles(context.Background(), "/movie.mkv", svc.SubtitleToken("/movie.mkv"))
	if err != nil {
		t.Fatalf("extraction failure must not surface: %v", err)
	}
	// The external sibling still loads.
	if len(tracks) != 1 || tracks[0].Title != subs.ExternalTitle {
		t.Errorf("tracks = %v, want the external track only", tracks)
	}
}

func TestSubtitles_archiveMemberHasNone(t *testing.T) {
	root := newTestRoot(t)
	se := &countingSubs{tracks: []subs.Track{{Title: "00:eng"}}}
	svc := newTestService(t, root, &countingThumbs{}, se)

	vpath := "/lib.zip/inner/pic_SBS.png"
	tracks, err := svc.Subtitles(context.Background(), vpath, svc.SubtitleToken(vpath))
	if err != nil {
		t.Fatal(err)
	}
	if tracks == nil || len(tracks) != 0 {
		t.Errorf("tracks = %v, want an empty set", tracks)
	}
	if se.calls != 0 {
		t.Errorf("extractor must not run for archive members")
	}
}

func TestMedia(t *testing.T) {
	root := newTestRoot(t)
	svc := newTestService(t, root, &countingThumbs{}, &countingSubs{})
	ctx := context.Background()

	plain, err := svc.Media(ctx, "/a_SBS.png")
	if err != nil {
		t.Fatal(err)
	}
	if plain.Path == "" || plain.Data != nil || plain.ContentType != "image/png" {
		t.Errorf("plain file content = %+v", plain)
	}

	member, err := svc.Media(ctx, "/lib.zip/inner/pic_SBS.png")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(member.Data, []byte("member-bytes")) || member.ContentType != "image/png" {
		t.Errorf("archive member content = %+v", member)
	}

	if _, err := svc.Media(ctx, "/missing.png"); !errors.Is(err, vfs.ErrNotFound) {
		t.Errorf("missing file: err = %v, want ErrNotFound", err)
	}
	if _, err := svc.Media(ctx, "/../etc/passwd"); !errors.Is(err, vfs.ErrAccessDenied) {
		t.Errorf("escaping path: err = %v, want ErrAccessDenied", err)
	}
}

func TestClearCache_forcesRederivation(t *testing.T) {
	root := newTestRoot(t)
	tg := &countingThumbs{}
	svc := newTestService(t, root, tg, &countingSubs{})

	token := svc.ThumbnailToken("/a_SBS.png")
	ctx := context.Background()
	if _, err := svc.Thumbnail(ctx, "/a_SBS.png", token); err != nil {
		t.Fatal(err)
	}
	if err := svc.ClearCache(); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Thumbnail(ctx, "/a_SBS.png", token); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt64(&tg.imageCalls); got != 2 {
		t.Errorf("generator ran %d times, want a fresh derivation after clear", got)
	}
}
