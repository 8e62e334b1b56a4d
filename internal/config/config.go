// Package config manages the n8n instance store and the per-directory
// project settings file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	// APIKeyEnv names the environment variable holding the API key used when a
	// remote target is given as a URL.
	APIKeyEnv = "N8N_API_KEY"
	// DirEnv overrides the directory of the instance store.
	DirEnv = "N8NCTL_CONFIG_DIR"

	storeFile = "instances.toml"
)

var instanceName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Config is the instance store.
type Config struct {
	CurrentInstance string              `toml:"current"`
	Instances       map[string]Instance `toml:"instances" validate:"dive"`
}

// Instance is a named n8n instance. The API key is either stored or read
// from the environment variable named by APIKeyEnv when the instance is
// resolved.
type Instance struct {
	Name      string `toml:"-" validate:"required,instance_name"`
	URL       string `toml:"url" validate:"required,http_url"`
	APIKey    string `toml:"api_key,omitempty" validate:"required_without=APIKeyEnv,excluded_with=APIKeyEnv"`
	APIKeyEnv string `toml:"api_key_env,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("instance_name", func(fl validator.FieldLevel) bool {
		return instanceName.MatchString(fl.Field().String())
	})
	return v
}

// Validate checks every instance and the current selection.
func (c *Config) Validate() error {
	for key, inst := range c.Instances {
		if inst.Name != key {
			return fmt.Errorf("instance '%s' is stored under '%s'", inst.Name, key)
		}
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return describe(verrs[0])
		}
		return err
	}
	if c.CurrentInstance != "" {
		if _, ok := c.Instances[c.CurrentInstance]; !ok {
			return fmt.Errorf("current instance '%s' is not configured", c.CurrentInstance)
		}
	}
	return nil
}

func describe(fe validator.FieldError) error {
	switch fe.Tag() {
	case "instance_name":
		return fmt.Errorf("invalid instance name %q: use letters, digits, '.', '_' or '-'", fe.Value())
	case "http_url":
		return fmt.Errorf("invalid URL %q: must be http or https", fe.Value())
	case "required_without":
		return fmt.Errorf("an API key or an API key environment variable is required")
	case "excluded_with":
		return fmt.Errorf("an API key and an API key environment variable are mutually exclusive")
	}
	return fmt.Errorf("%s is invalid (%s)", fe.Field(), fe.Tag())
}

// Names returns the configured instance names, sorted.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Instances))
	for name := range c.Instances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetCurrentInstance returns the currently active instance
func (c *Config) GetCurrentInstance() (*Instance, error) {
	if c.CurrentInstance == "" {
		return nil, fmt.Errorf("no instance selected. Run 'n8nctl config use <name>'")
	}
	return c.instance(c.CurrentInstance)
}

func (c *Config) instance(name string) (*Instance, error) {
	inst, exists := c.Instances[name]
	if !exists {
		return nil, fmt.Errorf("instance '%s' not found", name)
	}
	if inst.APIKeyEnv != "" {
		inst.APIKey = os.Getenv(inst.APIKeyEnv)
		if inst.APIKey == "" {
			return nil, fmt.Errorf("instance '%s' reads its API key from %s, which is not set", name, inst.APIKeyEnv)
		}
	}
	return &inst, nil
}

// ResolveTarget picks the instance to reconcile against. target is either a
// configured instance name or a URL, in which case the API key is read from
// N8N_API_KEY. An empty target selects the current instance.
func ResolveTarget(target string) (*Instance, error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		apiKey := os.Getenv(APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("%s must be set when the target is a URL", APIKeyEnv)
		}
		return &Instance{Name: target, URL: strings.TrimSuffix(target, "/"), APIKey: apiKey}, nil
	}

	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if target == "" {
		return cfg.GetCurrentInstance()
	}
	return cfg.instance(target)
}

// Dir returns the directory of the instance store: $N8NCTL_CONFIG_DIR if
// set, ~/.config/n8nctl otherwise.
func Dir() (string, error) {
	if dir := os.Getenv(DirEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "n8nctl"), nil
}

func storePath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, storeFile), nil
}

// Load reads and validates the instance store.
func Load() (*Config, error) {
	path, err := storePath()
	if err != nil {
		return nil, err
	}

	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("no configuration found. Run 'n8nctl config init' first")
		}
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}

	if cfg.Instances == nil {
		cfg.Instances = make(map[string]Instance)
	}
	for name, inst := range cfg.Instances {
		inst.Name = name
		cfg.Instances[name] = inst
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Save validates cfg and replaces the store file with it. The file is only
// readable by its owner.
func Save(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	path, err := storePath()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, storeFile+".*")
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := toml.NewEncoder(tmp).Encode(cfg); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Exists checks if the instance store exists
func Exists() bool {
	path, err := storePath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}
