// Package library is the request-scoped media service: listings,
// raw media access, and cached thumbnail/subtitle derivation.
package library

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"stereo-media-server/internal/cache"
	"stereo-media-server/internal/platform/metrics"
	"stereo-media-server/internal/subs"
	"stereo-media-server/internal/vfs"
	"stereo-media-server/internal/workpool"
)

// ThumbnailGenerator derives a preview image from a still or a video.
// A decode failure is an error; callers choose the fallback.
type ThumbnailGenerator interface {
	FromImage(data []byte, format vfs.StereoFormat) ([]byte, error)
	FromVideo(ctx context.Context, path string, format vfs.StereoFormat) ([]byte, error)
}

// SubtitleExtractor derives timed-text tracks from a local container.
// (nil, nil) means no tracks exist or none survived extraction.
type SubtitleExtractor interface {
	Extract(ctx context.Context, path string) ([]subs.Track, error)
}

// MediaContent is the outcome of resolving a raw media request:
// either in-memory bytes (archive members) or a local file path.
type MediaContent struct {
	Path        string // non-empty for plain files
	Data        []byte // non-nil for archive members
	ContentType string
}

// Service coordinates the virtual filesystem, the derivation cache,
// and the generators. All state is constructed once at startup and
// passed by reference; there are no ambient globals.
type Service struct {
	root    string
	cache   *cache.Store
	thumbs  ThumbnailGenerator
	subs    SubtitleExtractor
	pool    *workpool.Pool
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewService returns a Service rooted at the given media directory.
// Metrics may be nil to disable metric recording (e.g. in tests).
func NewService(root string, c *cache.Store, tg ThumbnailGenerator, se SubtitleExtractor, pool *workpool.Pool, log *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		root:    root,
		cache:   c,
		thumbs:  tg,
		subs:    se,
		pool:    pool,
		log:     log,
		metrics: m,
	}
}

// List returns the ordered entries of a virtual path.
func (s *Service) List(ctx context.Context, vpath string) ([]vfs.ListingEntry, error) {
	var entries []vfs.ListingEntry
	err := s.pool.Do(ctx, func() error {
		var err error
		entries, err = vfs.List(s.root, vpath)
		return err
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncListings()
	}
	return entries, nil
}

// Media resolves a virtual path to raw media content: the bytes of an
// archive member, or the absolute path of a plain file for the
// transport layer to serve.
func (s *Service) Media(ctx context.Context, vpath string) (*MediaContent, error) {
	rel := strings.TrimLeft(vpath, "/")
	if archiveRel, internal, ok := vfs.SplitArchivePath(rel); ok && internal != "" {
		var data []byte
		err := s.pool.Do(ctx, func() error {
			var err error
			data, err = vfs.ReadArchiveMember(s.root, archiveRel, internal)
			return err
		})
		if err != nil {
			return nil, err
		}
		return &MediaContent{Data: data, ContentType: contentTypeFor(internal)}, nil
	}

	abs, err := vfs.SafeJoin(s.root, vpath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: media file", vfs.ErrNotFound)
	}
	return &MediaContent{Path: abs, ContentType: contentTypeFor(abs)}, nil
}

// ThumbnailToken computes the current validation token for a
// thumbnail of vpath.
func (s *Service) ThumbnailToken(vpath string) string {
	return vfs.ThumbnailToken(s.root, vpath)
}

// SubtitleToken computes the current validation token for the
// subtitle track set of vpath.
func (s *Service) SubtitleToken(vpath string) string {
	return vfs.SubtitleToken(s.root, vpath)
}

// Thumbnail returns the cached or freshly derived thumbnail for vpath,
// keyed by token. A nil result with nil error means the source could
// not be decoded; nothing is cached in that case, so the next request
// retries.
func (s *Service) Thumbnail(ctx context.Context, vpath, token string) ([]byte, error) {
	if data, ok, err := s.cache.Get(token); err == nil && ok {
		if s.metrics != nil {
			s.metrics.IncCacheHits()
		}
		return data, nil
	} else if err != nil {
		s.log.Warn("thumbnail cache read failed", slog.String("error", err.Error()))
	}
	if s.metrics != nil {
		s.metrics.IncCacheMisses()
	}

	var result []byte
	err := s.pool.Do(ctx, func() error {
		var err error
		result, err = s.deriveThumbnail(ctx, vpath)
		return err
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		if s.metrics != nil {
			s.metrics.IncThumbnailFailures()
		}
		return nil, nil
	}

	if err := s.cache.Set(token, result); err != nil {
		s.log.Warn("thumbnail cache write failed", slog.String("error", err.Error()))
	}
	if s.metrics != nil {
		s.metrics.IncThumbnailsGenerated()
	}
	return result, nil
}

// deriveThumbnail loads the source pixels and runs the generator.
// Structural failures (missing file, escaping path, corrupt archive)
// are errors; decode failures collapse to a nil result.
func (s *Service) deriveThumbnail(ctx context.Context, vpath string) ([]byte, error) {
	rel := strings.TrimLeft(vpath, "/")

	if archiveRel, internal, ok := vfs.SplitArchivePath(rel); ok && internal != "" {
		data, err := vfs.ReadArchiveMember(s.root, archiveRel, internal)
		if err != nil {
			return nil, err
		}
		parent := path.Base(path.Dir(internal))
		if parent == "." {
			parent = ""
		}
		format := vfs.Classify([]string{path.Base(internal), parent, path.Base(archiveRel)})
		out, err := s.thumbs.FromImage(data, format)
		if err != nil {
			s.log.Debug("thumbnail decode failed", slog.String("error", err.Error()))
			return nil, nil
		}
		return out, nil
	}

	abs, err := vfs.SafeJoin(s.root, vpath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("%w: media file", vfs.ErrNotFound)
	}

	format := vfs.Classify(vfs.PathCandidates(abs))

	var out []byte
	if vfs.IsVideoPath(abs) {
		out, err = s.thumbs.FromVideo(ctx, abs, format)
	} else {
		var data []byte
		data, err = os.ReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("%w: media file", vfs.ErrNotFound)
		}
		out, err = s.thumbs.FromImage(data, format)
	}
	if err != nil {
		s.log.Debug("thumbnail decode failed", slog.String("error", err.Error()))
		return nil, nil
	}
	return out, nil
}

// Subtitles assembles the subtitle track set for vpath: the external
// caption sibling first (when one exists), then the embedded tracks,
// cached under token. Archive members have no subtitle capability and
// yield an empty set.
func (s *Service) Subtitles(ctx context.Context, vpath, token string) ([]subs.Track, error) {
	tracks := []subs.Track{}

	rel := strings.TrimLeft(vpath, "/")
	if _, internal, ok := vfs.SplitArchivePath(rel); ok && internal != "" {
		return tracks, nil
	}

	abs, err := vfs.SafeJoin(s.root, vpath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		return tracks, nil
	}

	if sibling, ok := vfs.FindCaptionSibling(abs); ok {
		if track, err := subs.LoadExternal(sibling.Path); err == nil {
			tracks = append(tracks, track)
		} else {
			s.log.Warn("external captions unreadable", slog.String("error", err.Error()))
		}
	}

	embedded, err := s.cachedEmbedded(ctx, abs, token)
	if err != nil {
		return nil, err
	}
	return append(tracks, embedded...), nil
}

func (s *Service) cachedEmbedded(ctx context.Context, abs, token string) ([]subs.Track, error) {
	if data, ok, err := s.cache.Get(token); err == nil && ok {
		if s.metrics != nil {
			s.metrics.IncCacheHits()
		}
		var embedded []subs.Track
		if err := json.Unmarshal(data, &embedded); err == nil {
			return embedded, nil
		}
		s.log.Warn("cached subtitles unreadable, re-extracting")
	}
	if s.metrics != nil {
		s.metrics.IncCacheMisses()
	}

	var embedded []subs.Track
	err := s.pool.Do(ctx, func() error {
		var err error
		embedded, err = s.subs.Extract(ctx, abs)
		return err
	})
	if err != nil {
		// One unreadable container must not block browsing; degrade
		// to absence and let the next request retry.
		s.log.Debug("subtitle extraction failed", slog.String("error", err.Error()))
		return nil, nil
	}
	if s.metrics != nil {
		s.metrics.IncSubtitleExtractions()
	}

	if len(embedded) > 0 {
		if data, err := json.Marshal(embedded); err == nil {
			if err := s.cache.Set(token, data); err != nil {
				s.log.Warn("subtitle cache write failed", slog.String("error", err.Error()))
			}
		}
	}
	return embedded, nil
}

// ClearCache drops every cached derived artifact. Source media is
// never touched.
func (s *Service) ClearCache() error {
	return s.cache.Clear()
}

func contentTypeFor(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".mkv":
		return "video/x-matroska"
	case ".webm":
		return "video/webm"
	default:
		return "application/octet-stream"
	}
}
