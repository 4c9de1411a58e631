package vfs

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strconv"
	"strings"
)

// ThumbnailToken derives the cache key and conditional-request token
// for a thumbnail. Plain files mix in their mtime so the token changes
// with the content; archive members key on the virtual path alone and
// are treated as immutable for the lifetime of the archive (an archive
// rewritten in place without a new outer mtime can therefore serve a
// stale thumbnail).
func ThumbnailToken(root, vpath string) string {
	raw := vpath
	if _, _, inArchive := SplitArchivePath(strings.TrimLeft(vpath, "/")); !inArchive {
		if abs, err := SafeJoin(root, vpath); err == nil {
			if info, err := os.Stat(abs); err == nil {
				raw += strconv.FormatInt(info.ModTime().Unix(), 10)
			}
		}
	}
	return hashToken(raw)
}

// SubtitleToken derives the cache key and conditional-request token
// for a subtitle track set. It is salted apart from the thumbnail
// token and additionally mixes in the suffix and mtime of whichever
// external caption sibling currently exists, so editing only the
// sibling invalidates the subtitles without touching the thumbnail.
func SubtitleToken(root, vpath string) string {
	raw := "subs_" + vpath
	if _, _, inArchive := SplitArchivePath(strings.TrimLeft(vpath, "/")); !inArchive {
		if abs, err := SafeJoin(root, vpath); err == nil {
			if info, err := os.Stat(abs); err == nil {
				raw += strconv.FormatInt(info.ModTime().Unix(), 10)
			}
			if sibling, ok := FindCaptionSibling(abs); ok {
				raw += "_" + strings.TrimPrefix(sibling.Ext, ".") + "_" + strconv.FormatInt(sibling.Mtime, 10)
			}
		}
	}
	return hashToken(raw)
}

// CaptionSibling describes an external caption file sharing a video's
// basename.
type CaptionSibling struct {
	Path  string
	Ext   string // ".vtt" or ".srt"
	Mtime int64
}

// FindCaptionSibling locates the external caption file for abs,
// preferring a ".vtt" sibling over ".srt".
func FindCaptionSibling(abs string) (CaptionSibling, bool) {
	base := strings.TrimSuffix(abs, pathExt(abs))
	for _, ext := range []string{".vtt", ".srt"} {
		if info, err := os.Stat(base + ext); err == nil {
			return CaptionSibling{Path: base + ext, Ext: ext, Mtime: info.ModTime().Unix()}, true
		}
	}
	return CaptionSibling{}, false
}

func pathExt(p string) string {
	if i := strings.LastIndexByte(p, '.'); i >= 0 && !strings.ContainsAny(p[i:], "/\\") {
		return p[i:]
	}
	return ""
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
