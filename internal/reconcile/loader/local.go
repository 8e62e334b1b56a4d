// Package loader builds entity collections from local definition files and
// from the remote instance.
package loader

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"

	"github.com/enthus-appdev/n8nctl/internal/reconcile/entity"
)

// ProjectFile is the project settings file name; it is not a definition.
const ProjectFile = "n8nctl.toml"

// Local loads desired state from a directory of definition files.
type Local struct {
	fs       afs.Service
	validate *validator.Validate
	mode     entity.HashMode
	logger   zerolog.Logger
}

// NewLocal creates a local loader hashing workflows with mode.
func NewLocal(mode entity.HashMode, logger zerolog.Logger) *Local {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Local{
		fs:       afs.New(),
		validate: v,
		mode:     mode,
		logger:   logger.With().Str("component", "loader").Logger(),
	}
}

type source struct {
	path   string
	entity entity.Entity
}

// Load reads every definition below path. All defects are collected into a
// single *LoadError; nothing is returned unless the whole directory is valid.
func (l *Local) Load(ctx context.Context, path string) (*entity.Collection, error) {
	base := url.Normalize(path, file.Scheme)
	exists, err := l.fs.Exists(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("failed to access %s: %w", path, err)
	}
	if !exists {
		return nil, &LoadError{Problems: []Problem{{Source: path, Message: "directory does not exist"}}}
	}

	objects, err := l.fs.List(ctx, base, option.NewRecursive(true))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", path, err)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].URL() < objects[j].URL() })

	loadErr := &LoadError{}
	var sources []source
	for _, object := range objects {
		if !isDefinition(object) {
			continue
		}
		rel := relative(base, object.URL())

		data, err := l.fs.Download(ctx, object)
		if err != nil {
			loadErr.add(rel, "failed to read: %v", err)
			continue
		}
		e, err := l.parse(data, object.Name())
		if err != nil {
			loadErr.add(rel, "%v", err)
			continue
		}
		sources = append(sources, source{path: rel, entity: e})
	}

	collection := entity.NewCollection()
	origin := make(map[entity.Ref]string)
	declared := make(map[string]string)
	for _, src := range sources {
		ref := src.entity.Ref()
		if wf, ok := src.entity.(*entity.Workflow); ok && wf.LocalID != "" {
			if other, dup := declared[wf.LocalID]; dup {
				loadErr.add(src.path, "duplicate workflow id %q (also declared in %s)", wf.LocalID, other)
				continue
			}
			declared[wf.LocalID] = src.path
		}
		if err := collection.Add(src.entity); err != nil {
			if errors.Is(err, entity.ErrDuplicate) {
				loadErr.add(src.path, "duplicate %s (also defined in %s)", ref, origin[ref])
			} else {
				loadErr.add(src.path, "%v", err)
			}
			continue
		}
		origin[ref] = src.path
	}

	if err := loadErr.orNil(); err != nil {
		return nil, err
	}

	added := addImplicit(collection)
	if added > 0 {
		l.logger.Debug().Int("count", added).Msg("Added implicitly referenced tags and credentials")
	}

	if err := collection.Finalize(l.mode); err != nil {
		return nil, &LoadError{Problems: []Problem{{Source: path, Message: err.Error()}}}
	}

	l.logger.Info().Int("entities", collection.Len()).Str("path", path).Msg("Loaded definitions")
	return collection, nil
}

func (l *Local) parse(data []byte, name string) (entity.Entity, error) {
	def, err := decodeDefinition(data, !strings.HasSuffix(name, ".json"))
	if err != nil {
		return nil, err
	}
	if err := l.validate.Struct(def); err != nil {
		return nil, describeValidation(err)
	}
	return def.Entity()
}

// addImplicit declares every tag and credential referenced by a workflow
// that has no definition of its own. It returns how many were added.
func addImplicit(c *entity.Collection) int {
	added := 0
	for _, wf := range c.Workflows() {
		for _, name := range wf.Tags {
			if !c.Has(entity.TagRef(name)) {
				_ = c.Add(&entity.Tag{Name: name, Implicit: true})
				added++
			}
		}
		for _, cred := range wf.Credentials {
			if !c.Has(cred.Ref()) {
				_ = c.Add(&entity.Credential{Name: cred.Name, Type: cred.Type, Implicit: true})
				added++
			}
		}
	}
	return added
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Definition.")
		switch fe.Tag() {
		case "required", "required_if":
			msgs = append(msgs, field+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of %s, got %q", field, fe.Param(), fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %q validation", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

func isDefinition(object storage.Object) bool {
	if object.IsDir() {
		return false
	}
	name := object.Name()
	if strings.HasPrefix(name, ".") || name == ProjectFile {
		return false
	}
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

func relative(base, objectURL string) string {
	rel := strings.TrimPrefix(url.Path(objectURL), url.Path(base))
	return strings.TrimPrefix(rel, "/")
}
