package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/enthus-appdev/n8nctl/internal/reconcile"
	"github.com/enthus-appdev/n8nctl/internal/reconcile/entity"
	"github.com/enthus-appdev/n8nctl/internal/reconcile/loader"
)

type projectFile struct {
	PreserveUntracked bool   `toml:"preserve_untracked"`
	HashMode          string `toml:"hash_mode"`
	Concurrency       int    `toml:"concurrency"`
	MaxRetries        int    `toml:"max_retries"`
	CallTimeout       string `toml:"call_timeout"`
	DryRun            bool   `toml:"dry_run"`
}

// LoadProject applies the settings of the n8nctl.toml file in dir on top of
// opts. Only keys present in the file override opts. A missing file is not an
// error.
func LoadProject(dir string, opts reconcile.Options) (reconcile.Options, error) {
	path := filepath.Join(dir, loader.ProjectFile)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return opts, nil
	}

	var raw projectFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return opts, fmt.Errorf("load %s: %w", loader.ProjectFile, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return opts, fmt.Errorf("load %s: unknown keys %s", loader.ProjectFile, strings.Join(keys, ", "))
	}

	if meta.IsDefined("preserve_untracked") {
		opts.PreserveUntracked = raw.PreserveUntracked
	}

	if meta.IsDefined("hash_mode") {
		mode, err := entity.ParseHashMode(strings.TrimSpace(raw.HashMode))
		if err != nil {
			return opts, fmt.Errorf("parse hash_mode: %w", err)
		}
		opts.HashMode = mode
	}

	if meta.IsDefined("concurrency") {
		if raw.Concurrency < 1 {
			return opts, fmt.Errorf("concurrency must be at least 1, got %d", raw.Concurrency)
		}
		opts.Apply.Concurrency = raw.Concurrency
	}

	if meta.IsDefined("max_retries") {
		if raw.MaxRetries < 0 {
			return opts, fmt.Errorf("max_retries must not be negative, got %d", raw.MaxRetries)
		}
		opts.Apply.MaxRetries = raw.MaxRetries
	}

	if meta.IsDefined("call_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.CallTimeout))
		if err != nil {
			return opts, fmt.Errorf("parse call_timeout: %w", err)
		}
		if d <= 0 {
			return opts, fmt.Errorf("call_timeout must be positive, got %s", d)
		}
		opts.Apply.CallTimeout = d
	}

	if meta.IsDefined("dry_run") {
		opts.Apply.DryRun = raw.DryRun
	}

	return opts, nil
}
