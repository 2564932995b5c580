package media

import (
	"path/filepath"
	"strings"
)

// Container identifies an audio file format by extension.
type Container string

const (
	ContainerUnknown Container = ""
	ContainerMP3     Container = "mp3"
	ContainerFLAC    Container = "flac"
	ContainerM4A     Container = "m4a"
	ContainerAAC     Container = "aac"
	ContainerOgg     Container = "ogg"
	ContainerOpus    Container = "opus"
	ContainerWAV     Container = "wav"
)

var knownContainers = map[string]Container{
	"mp3":  ContainerMP3,
	"flac": ContainerFLAC,
	"m4a":  ContainerM4A,
	"aac":  ContainerAAC,
	"ogg":  ContainerOgg,
	"oga":  ContainerOgg,
	"opus": ContainerOpus,
	"wav":  ContainerWAV,
}

// ContainerFor maps a path to its container by extension.
func ContainerFor(path string) Container {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	return knownContainers[ext]
}

// Lossless reports whether the container stores lossless audio.
func (c Container) Lossless() bool {
	return c == ContainerFLAC || c == ContainerWAV
}

// Audio reports whether the container is a recognized audio format.
func (c Container) Audio() bool {
	return c != ContainerUnknown
}

// ExtensionSet builds a lookup for configured extensions (without dots).
type ExtensionSet map[string]struct{}

// NewExtensionSet normalizes extensions into a set.
func NewExtensionSet(exts []string) ExtensionSet {
	set := make(ExtensionSet, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			set[ext] = struct{}{}
		}
	}
	return set
}

// Match reports whether path has one of the configured extensions.
func (s ExtensionSet) Match(path string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	_, ok := s[ext]
	return ok
}
