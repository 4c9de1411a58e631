package vfs

import (
	"errors"
	"path"
	"strings"
)

// EntryType classifies a listing entry.
type EntryType string

const (
	TypeDirectory EntryType = "directory"
	TypeImage     EntryType = "image"
	TypeVideo     EntryType = "video"
	TypeArchive   EntryType = "archive"
)

// ListingEntry is one row of a directory or archive listing.
// Size is nil for directories; StereoFormat is nil for plain directories.
type ListingEntry struct {
	Path         string        `json:"path"`
	Name         string        `json:"name"`
	Type         EntryType     `json:"type"`
	Size         *int64        `json:"size"`
	Mtime        int64         `json:"mtime"`
	StereoFormat *StereoFormat `json:"stereo_format"`
}

var (
	// ErrAccessDenied is returned when a virtual path resolves outside
	// the media root.
	ErrAccessDenied = errors.New("access denied")

	// ErrNotFound is returned for a missing file, directory, archive,
	// or archive member.
	ErrNotFound = errors.New("not found")

	// ErrCorruptArchive is returned when an archive's central directory
	// cannot be read. No partial listing is produced.
	ErrCorruptArchive = errors.New("corrupt archive")
)

var (
	imageExtensions = map[string]bool{
		".png":  true,
		".jpeg": true,
		".jpg":  true,
		".webp": true,
	}
	videoExtensions = map[string]bool{
		".mp4":  true,
		".mkv":  true,
		".webm": true,
	}
	archiveExtensions = map[string]bool{
		".zip": true,
	}
)

// IsImagePath reports whether name has an allowed still-image extension.
func IsImagePath(name string) bool {
	return imageExtensions[strings.ToLower(path.Ext(name))]
}

// IsVideoPath reports whether name has an allowed video extension.
func IsVideoPath(name string) bool {
	return videoExtensions[strings.ToLower(path.Ext(name))]
}

// IsArchivePath reports whether name has an allowed archive extension.
func IsArchivePath(name string) bool {
	return archiveExtensions[strings.ToLower(path.Ext(name))]
}
