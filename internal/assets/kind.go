package assets

import (
	"fmt"
	"sort"
	"strings"
)

// Kind is the media category of an asset.
type Kind uint8

const (
	Image Kind = iota + 1
	Sound
	Animation
	Video
)

// Format is one target rendition of a kind. Name selects the encoder preset;
// Suffix is the file extension, leading dot included.
type Format struct {
	Name   string
	Suffix string
}

type kindSpec struct {
	name         string
	sources      []string
	outputs      []Format
	sourceFormat string
}

var kindSpecs = map[Kind]kindSpec{
	Image: {
		name:         "image",
		sources:      []string{".png", ".jpg", ".jpeg"},
		outputs:      []Format{{"avif", ".avif"}, {"webp", ".webp"}, {"png", ".png"}},
		sourceFormat: ".png",
	},
	Sound: {
		name:         "sound",
		sources:      []string{".wav"},
		outputs:      []Format{{"mp3", ".mp3"}, {"ogg", ".ogg"}, {"m4a", ".m4a"}},
		sourceFormat: ".wav",
	},
	Animation: {
		name:         "animation",
		sources:      []string{".gif"},
		outputs:      []Format{{"gif", ".gif"}, {"webp", ".webp"}, {"avif", ".avif"}},
		sourceFormat: ".gif",
	},
	Video: {
		name:         "video",
		sources:      []string{".mp4"},
		outputs:      []Format{{"h264", ".mp4"}, {"av1", ".webm"}},
		sourceFormat: ".mp4",
	},
}

var extensionKinds = func() map[string]Kind {
	out := make(map[string]Kind)
	for kind, spec := range kindSpecs {
		for _, ext := range spec.sources {
			out[ext] = kind
		}
	}
	return out
}()

// Kinds lists every kind in declaration order.
func Kinds() []Kind {
	return []Kind{Image, Sound, Animation, Video}
}

func (k Kind) String() string {
	if spec, ok := kindSpecs[k]; ok {
		return spec.name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Outputs returns the formats every asset of kind k is converted into.
func (k Kind) Outputs() []Format {
	return append([]Format(nil), kindSpecs[k].outputs...)
}

// OutputSuffixes returns the output suffixes of k sorted lexically.
func (k Kind) OutputSuffixes() []string {
	outputs := kindSpecs[k].outputs
	suffixes := make([]string, 0, len(outputs))
	for _, f := range outputs {
		suffixes = append(suffixes, f.Suffix)
	}
	sort.Strings(suffixes)
	return suffixes
}

// SourceFormat is the format advertised for k when nothing was converted.
func (k Kind) SourceFormat() string {
	return kindSpecs[k].sourceFormat
}

// Produces reports whether kind k emits an output with the given suffix.
func (k Kind) Produces(suffix string) bool {
	for _, f := range kindSpecs[k].outputs {
		if f.Suffix == suffix {
			return true
		}
	}
	return false
}

// ParseKind maps a kind name back to its Kind.
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, kind := range Kinds() {
		if kindSpecs[kind].name == name {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown asset kind %q", name)
}

// KindForExtension classifies a file extension case-insensitively.
func KindForExtension(ext string) (Kind, bool) {
	kind, ok := extensionKinds[strings.ToLower(ext)]
	return kind, ok
}

// OutputOwners returns the kinds that emit suffix, in declaration order.
func OutputOwners(suffix string) []Kind {
	var owners []Kind
	for _, kind := range Kinds() {
		if kind.Produces(suffix) {
			owners = append(owners, kind)
		}
	}
	return owners
}
