// Package export writes remote state as a directory of definition files that
// reconciles back to the same state.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	"github.com/enthus-appdev/n8nctl/internal/reconcile/entity"
	"github.com/enthus-appdev/n8nctl/internal/reconcile/loader"
)

var unsafeChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// SanitizeFilename converts an entity name to a safe filename
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, " ", "_")
	name = unsafeChars.ReplaceAllString(name, "")
	name = strings.Trim(name, ". ")

	if len(name) > 200 {
		name = name[:200]
	}
	if name == "" {
		name = "unnamed"
	}
	return name
}

// Subdirectory per kind.
var kindDirs = map[entity.Kind]string{
	entity.KindTag:        "tags",
	entity.KindCredential: "credentials",
	entity.KindWorkflow:   "workflows",
}

// Exporter writes definition files.
type Exporter struct {
	fs     afs.Service
	logger zerolog.Logger
}

// New creates an exporter
func New(logger zerolog.Logger) *Exporter {
	return &Exporter{
		fs:     afs.New(),
		logger: logger.With().Str("component", "export").Logger(),
	}
}

// Export writes one JSON definition per entity of c below dir, grouped in a
// subdirectory per kind. Names that sanitize to the same filename get a
// numeric suffix. It returns the written paths relative to dir, in identity
// order.
func (x *Exporter) Export(ctx context.Context, c *entity.Collection, dir string) ([]string, error) {
	base := url.Normalize(dir, file.Scheme)
	used := make(map[string]int)

	var written []string
	for _, ref := range c.Refs() {
		e, _ := c.Get(ref)
		def := loader.DefinitionOf(e)
		if def == nil {
			continue
		}

		data, err := json.MarshalIndent(def, "", "  ")
		if err != nil {
			return written, fmt.Errorf("failed to marshal %s: %w", ref, err)
		}

		name := kindDirs[ref.Kind] + "/" + SanitizeFilename(ref.Name)
		used[name]++
		if n := used[name]; n > 1 {
			name += "-" + strconv.Itoa(n)
		}
		name += ".json"

		target := url.Join(base, name)
		if err := x.fs.Upload(ctx, target, file.DefaultFileOsMode, bytes.NewReader(append(data, '\n'))); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", name, err)
		}
		x.logger.Debug().Str("entity", ref.String()).Str("file", name).Msg("Exported")
		written = append(written, name)
	}

	x.logger.Info().Int("files", len(written)).Str("path", dir).Msg("Exported remote state")
	return written, nil
}
