package vfs

import (
	"path/filepath"
	"sort"
	"strings"
)

// StereoFormat is the eye-packing convention encoded in an asset's name.
type StereoFormat string

const (
	Flat         StereoFormat = "FLAT"
	SBSFull      StereoFormat = "SBS_FULL"
	SBSHalf      StereoFormat = "SBS_HALF"
	SBSFullCross StereoFormat = "SBS_FULL_CROSS"
	TBFull       StereoFormat = "TB_FULL"
	TBHalf       StereoFormat = "TB_HALF"
)

// tagFormats maps filename tags to packing formats. "_TBF" appears in
// both full and half families in the wild; it is treated as full.
var tagFormats = map[string]StereoFormat{
	"_Full_SBS": SBSFull,
	"_fullsbs":  SBSFull,
	"_LRF":      SBSFull,
	"_SBS":      SBSFull,
	"_3DHF":     SBSFull,
	"_3DPHF":    SBSFull,
	"_RLF":      SBSFullCross,
	"_LR":       SBSHalf,
	"_3DH":      SBSHalf,
	"_3DPH":     SBSHalf,
	"_Full_TB":  TBFull,
	"_fulltb":   TBFull,
	"_TBF":      TBFull,
	"_3DVF":     TBFull,
	"_3DPVF":    TBFull,
	"_TB":       TBHalf,
	"_3DV":      TBHalf,
	"_3DPV":     TBHalf,
}

// sortedTags holds the tag table keys longest-first so a specific tag
// is never shadowed by a substring match of a shorter one.
var sortedTags = func() []string {
	tags := make([]string, 0, len(tagFormats))
	for tag := range tagFormats {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		if len(tags[i]) != len(tags[j]) {
			return len(tags[i]) > len(tags[j])
		}
		return tags[i] < tags[j]
	})
	return tags
}()

// Classify matches each candidate string, in order, against the tag
// table using case-insensitive substring search and returns the format
// of the first match. Candidates are conventionally ordered entry name,
// parent name, archive name. Flat is returned when nothing matches.
func Classify(candidates []string) StereoFormat {
	for _, name := range candidates {
		if name == "" {
			continue
		}
		name = strings.ToLower(name)
		for _, tag := range sortedTags {
			if strings.Contains(name, strings.ToLower(tag)) {
				return tagFormats[tag]
			}
		}
	}
	return Flat
}

// PathCandidates derives the standard candidate list from a path:
// the basename first, then the parent directory's basename.
func PathCandidates(p string) []string {
	candidates := []string{filepath.Base(p)}
	if parent := filepath.Base(filepath.Dir(p)); parent != "." && parent != string(filepath.Separator) {
		candidates = append(candidates, parent)
	}
	return candidates
}
