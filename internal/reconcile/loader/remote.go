package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/enthus-appdev/n8nctl/internal/reconcile/entity"
)

// Lister is the read half of the remote capability set.
type Lister interface {
	List(ctx context.Context, kind entity.Kind, cursor string) (*entity.Page, error)
}

// Remote loads current state from a remote instance.
type Remote struct {
	mode   entity.HashMode
	logger zerolog.Logger
}

// NewRemote creates a remote loader hashing workflows with mode.
func NewRemote(mode entity.HashMode, logger zerolog.Logger) *Remote {
	return &Remote{
		mode:   mode,
		logger: logger.With().Str("component", "loader").Logger(),
	}
}

// Load fetches every page of every kind. The result is all-or-nothing: any
// failed page yields a *RemoteUnavailableError and no collection.
func (r *Remote) Load(ctx context.Context, lister Lister) (*entity.Collection, error) {
	pages := make([][]entity.Entity, len(entity.Kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range entity.Kinds {
		g.Go(func() error {
			items, err := listAll(gctx, lister, kind)
			if err != nil {
				return &RemoteUnavailableError{Kind: kind, Err: err}
			}
			pages[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	collection := entity.NewCollection()
	loadErr := &LoadError{}
	for _, items := range pages {
		for _, e := range items {
			if wf, ok := e.(*entity.Workflow); ok {
				wf.LocalID = wf.ID
				wf.Tags = entity.NormalizeTags(wf.Tags)
				if err := wf.Analyze(); err != nil {
					loadErr.add("remote", "%s (id %s): %v", wf.Ref(), wf.ID, err)
					continue
				}
			}
			if err := collection.Add(e); err != nil {
				if errors.Is(err, entity.ErrDuplicate) {
					loadErr.add("remote", "%s is not unique by name (id %s)", e.Ref(), e.RemoteID())
				} else {
					loadErr.add("remote", "%v (id %s)", err, e.RemoteID())
				}
			}
		}
	}
	if err := loadErr.orNil(); err != nil {
		return nil, err
	}

	if err := collection.Finalize(r.mode); err != nil {
		return nil, &LoadError{Problems: []Problem{{Source: "remote", Message: err.Error()}}}
	}

	r.logger.Info().Int("entities", collection.Len()).Msg("Fetched remote state")
	return collection, nil
}

func listAll(ctx context.Context, lister Lister, kind entity.Kind) ([]entity.Entity, error) {
	var (
		items  []entity.Entity
		cursor string
		seen   = make(map[string]bool)
	)
	for {
		page, err := lister.List(ctx, kind, cursor)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)

		if page.NextCursor == "" {
			return items, nil
		}
		if seen[page.NextCursor] {
			return nil, fmt.Errorf("pagination cursor %q repeated", page.NextCursor)
		}
		seen[page.NextCursor] = true
		cursor = page.NextCursor
	}
}
