package vfs

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
)

// List returns the ordered entries of a virtual path: the direct
// children of a plain directory, or the members of one archive level.
// Entries are sorted directories-first, then by name ascending.
func List(root, vpath string) ([]ListingEntry, error) {
	rel := strings.TrimLeft(strings.ReplaceAll(vpath, "\\", "/"), "/")
	if archiveRel, internal, ok := SplitArchivePath(rel); ok {
		return listArchive(root, archiveRel, internal)
	}
	return listDirectory(root, rel)
}

func listDirectory(root, rel string) ([]ListingEntry, error) {
	abs, err := SafeJoin(root, rel)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: directory", ErrNotFound)
	}

	dirEntries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	relClean := strings.Trim(rel, "/")
	entries := make([]ListingEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		var entryType EntryType
		switch {
		case de.IsDir():
			entryType = TypeDirectory
		case IsImagePath(name):
			entryType = TypeImage
		case IsVideoPath(name):
			entryType = TypeVideo
		case IsArchivePath(name):
			entryType = TypeArchive
		default:
			continue
		}

		fi, err := de.Info()
		if err != nil {
			continue
		}

		entry := ListingEntry{
			Path:  joinVirtual(relClean, name),
			Name:  name,
			Type:  entryType,
			Mtime: fi.ModTime().Unix(),
		}
		if entryType != TypeDirectory {
			size := fi.Size()
			entry.Size = &size
			format := Classify(PathCandidates(filepath.Join(abs, name)))
			entry.StereoFormat = &format
		}
		entries = append(entries, entry)
	}

	sortEntries(entries)
	return entries, nil
}

func listArchive(root, archiveRel, internal string) ([]ListingEntry, error) {
	absZip, err := SafeJoin(root, archiveRel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(absZip)
	if err != nil {
		return nil, fmt.Errorf("%w: archive", ErrNotFound)
	}
	zipMtime := info.ModTime().Unix()

	r, err := zip.OpenReader(absZip)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCorruptArchive, path.Base(archiveRel))
	}
	defer r.Close()

	prefix := strings.Trim(internal, "/")
	if prefix != "" {
		prefix += "/"
	}

	// Directories are deduplicated by first-segment name; a directory
	// marker wins over a same-named file at the same level.
	dirs := make(map[string]ListingEntry)
	files := make(map[string]ListingEntry)

	for _, f := range r.File {
		name := strings.ReplaceAll(f.Name, "\\", "/")
		if !strings.HasPrefix(name, prefix) || name == prefix {
			continue
		}

		rest := name[len(prefix):]
		segments := strings.SplitN(strings.TrimSuffix(rest, "/"), "/", 2)
		itemName := segments[0]
		if itemName == "" {
			continue
		}

		mtime := zipMtime
		if m := f.Modified; !m.IsZero() {
			mtime = m.Unix()
		}

		if len(segments) > 1 || strings.HasSuffix(name, "/") {
			if _, seen := dirs[itemName]; !seen {
				format := Flat
				dirs[itemName] = ListingEntry{
					Path:         joinVirtual(archiveRel, prefix+itemName),
					Name:         itemName,
					Type:         TypeDirectory,
					Mtime:        mtime,
					StereoFormat: &format,
				}
			}
			continue
		}

		if !IsImagePath(itemName) {
			continue
		}
		size := int64(f.UncompressedSize64)
		format := Classify([]string{
			itemName,
			path.Base(strings.TrimSuffix(prefix, "/")),
			path.Base(archiveRel),
		})
		files[itemName] = ListingEntry{
			Path:         joinVirtual(archiveRel, prefix+itemName),
			Name:         itemName,
			Type:         TypeImage,
			Size:         &size,
			Mtime:        mtime,
			StereoFormat: &format,
		}
	}

	entries := make([]ListingEntry, 0, len(dirs)+len(files))
	for _, e := range dirs {
		entries = append(entries, e)
	}
	for name, e := range files {
		if _, shadowed := dirs[name]; shadowed {
			continue
		}
		entries = append(entries, e)
	}

	sortEntries(entries)
	return entries, nil
}

// ReadArchiveMember returns the raw bytes of one archive member.
func ReadArchiveMember(root, archiveRel, internal string) ([]byte, error) {
	absZip, err := SafeJoin(root, archiveRel)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(absZip); err != nil {
		return nil, fmt.Errorf("%w: archive", ErrNotFound)
	}

	r, err := zip.OpenReader(absZip)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCorruptArchive, path.Base(archiveRel))
	}
	defer r.Close()

	internal = strings.Trim(strings.ReplaceAll(internal, "\\", "/"), "/")
	for _, f := range r.File {
		if strings.ReplaceAll(f.Name, "\\", "/") != internal {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: member", ErrCorruptArchive)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("%w: member", ErrCorruptArchive)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: archive member", ErrNotFound)
}

func joinVirtual(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "/")
}

func sortEntries(entries []ListingEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		di := entries[i].Type == TypeDirectory
		dj := entries[j].Type == TypeDirectory
		if di != dj {
			return di
		}
		return entries[i].Name < entries[j].Name
	})
}
