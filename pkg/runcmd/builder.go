package runcmd

import (
	"fmt"
	"strings"
)

// DefaultImage is the published neuroscout-cli container image.
const DefaultImage = "neuroscout/neuroscout-cli"

// DefaultOutputDir is the placeholder host directory shown to users.
const DefaultOutputDir = "/local/outputdirectory"

// Builder constructs the docker command used to run a compiled bundle.
// All methods are pure functions with no side effects.
// Zero value is ready to use.
type Builder struct{}

// Params defines inputs for a run command.
type Params struct {
	Image      string
	Version    string
	OutputDir  string
	AnalysisID string
}

// Build returns the full docker run command for an analysis.
func (b Builder) Build(p Params) string {
	outDir := p.OutputDir
	if outDir == "" {
		outDir = DefaultOutputDir
	}

	parts := []string{
		"docker run --rm -it",
		b.buildVolume(outDir),
		b.ImageRef(p.Image, p.Version),
		"run /out",
		p.AnalysisID,
	}
	return strings.Join(parts, " ")
}

// ImageRef returns image[:version]. The tag is omitted when version is empty.
func (b Builder) ImageRef(image, version string) string {
	if image == "" {
		image = DefaultImage
	}
	version = strings.TrimPrefix(version, ":")
	if version == "" {
		return image
	}
	return fmt.Sprintf("%s:%s", image, version)
}

func (b Builder) buildVolume(outDir string) string {
	return fmt.Sprintf("-v %s:/out", outDir)
}
