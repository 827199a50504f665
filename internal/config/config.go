package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/loom-dev/loom/internal/errors"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "loom.json"

	// DefaultPort is the default development server port.
	DefaultPort = 3000

	// DefaultHost is the default development server host.
	DefaultHost = "localhost"

	// DefaultOutput is the default build output directory.
	DefaultOutput = "dist"

	// DefaultTemplate is the default HTML template path.
	DefaultTemplate = "index.html"
)

// Config represents the complete loom.json configuration.
type Config struct {
	// Name is the project name.
	Name string `json:"name,omitempty"`

	// Client declares the client target. Required.
	Client TargetConfig `json:"client"`

	// SSR declares the server-render target. Required.
	SSR TargetConfig `json:"ssr"`

	// APIs declares the named API targets in registration order.
	APIs APIList `json:"apis,omitempty"`

	// Template is the HTML template put through the build pipeline.
	Template string `json:"template,omitempty"`

	// Dev contains development server configuration.
	Dev DevConfig `json:"dev,omitempty"`

	// Build contains production build configuration.
	Build BuildConfig `json:"build,omitempty"`

	// Bundler configures the external bundler and module runtime.
	Bundler BundlerConfig `json:"bundler,omitempty"`

	// Deploy configures artifact publishing.
	Deploy DeployConfig `json:"deploy,omitempty"`

	// configPath stores the path the config was loaded from.
	configPath string
}

// TargetConfig declares one target: either a bare entry path or an object
// with entry, optional route, and optional environment overrides.
type TargetConfig struct {
	// Entry is the source entry path, relative to the project root.
	Entry string `json:"entry"`

	// Route is the API route prefix. Only meaningful for API targets;
	// defaults to "/" + the target name.
	Route string `json:"route,omitempty"`

	// Environment contains define-style overrides merged over the base
	// bundler options for this target.
	Environment map[string]string `json:"environment,omitempty"`
}

// UnmarshalJSON accepts either a bare entry string or the object form.
func (t *TargetConfig) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &t.Entry)
	}
	type plain TargetConfig
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = TargetConfig(p)
	return nil
}

// APIConfig is one named API target declaration.
type APIConfig struct {
	Name string
	TargetConfig
}

// APIList preserves the declaration order of the "apis" object. Route
// matching in development walks prefixes in this order, so losing it to a
// map would change routing semantics.
type APIList []APIConfig

// UnmarshalJSON decodes the apis object token by token to keep key order.
func (l *APIList) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("apis: expected object, got %v", tok)
	}

	var list APIList
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("apis: expected string key, got %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var tc TargetConfig
		if err := tc.UnmarshalJSON(raw); err != nil {
			return err
		}
		list = append(list, APIConfig{Name: name, TargetConfig: tc})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	*l = list
	return nil
}

// MarshalJSON writes the apis object back in declaration order.
func (l APIList) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, api := range l {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(api.Name)
		if err != nil {
			return nil, err
		}
		b.Write(key)
		b.WriteByte(':')
		val, err := json.Marshal(api.TargetConfig)
		if err != nil {
			return nil, err
		}
		b.Write(val)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// DevConfig contains development server settings.
type DevConfig struct {
	// Port is the port to run the dev server on.
	Port int `json:"port,omitempty"`

	// Host is the host to bind to.
	Host string `json:"host,omitempty"`

	// OpenBrowser opens the browser automatically on start.
	OpenBrowser bool `json:"openBrowser,omitempty"`

	// Watch contains extra paths to watch for changes.
	Watch []string `json:"watch,omitempty"`

	// Ignore contains patterns to ignore during watch.
	Ignore []string `json:"ignore,omitempty"`

	// HotReload enables the browser reload channel in development.
	HotReload bool `json:"hotReload,omitempty"`
}

// BuildConfig contains production build settings.
type BuildConfig struct {
	// Output is the output root for builds.
	Output string `json:"output,omitempty"`

	// Minify enables minification.
	Minify bool `json:"minify,omitempty"`

	// SourceMaps enables source map generation.
	SourceMaps bool `json:"sourceMaps,omitempty"`
}

// BundlerConfig configures the external bundler and module runtime.
type BundlerConfig struct {
	// Command is the bundler binary invoked for compiles.
	Command string `json:"command,omitempty"`

	// Runtime is the module runtime binary used to execute handlers
	// during development.
	Runtime string `json:"runtime,omitempty"`
}

// DeployConfig configures publishing of the build output.
type DeployConfig struct {
	// Bucket is the S3 bucket receiving the build output.
	Bucket string `json:"bucket,omitempty"`

	// Prefix is the key prefix inside the bucket.
	Prefix string `json:"prefix,omitempty"`

	// Region is the bucket's region.
	Region string `json:"region,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Client:   TargetConfig{Entry: "src/entry-client.ts"},
		SSR:      TargetConfig{Entry: "src/entry-server.ts"},
		Template: DefaultTemplate,
		Dev: DevConfig{
			Port:        DefaultPort,
			Host:        DefaultHost,
			OpenBrowser: false,
			HotReload:   true,
			Watch:       []string{"src", "public"},
		},
		Build: BuildConfig{
			Output: DefaultOutput,
			Minify: true,
		},
		Bundler: BundlerConfig{
			Command: "esbuild",
			Runtime: "node",
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for loom.json in the directory.
func Load(dir string) (*Config, error) {
	configPath := filepath.Join(dir, ConfigFileName)
	return LoadFile(configPath)
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E501").
				WithDetail("No loom.json found in " + filepath.Dir(path)).
				WithSuggestion("Run 'loom create' to scaffold a new project or create loom.json manually")
		}
		return nil, errors.New("E106").Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("E106").
			WithDetail("Failed to parse loom.json: " + err.Error()).
			WithSuggestion("Check that loom.json is valid JSON")
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("E106").Wrap(err)
	}

	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("E106").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Dev.Port == 0 {
		c.Dev.Port = DefaultPort
	}
	if c.Dev.Host == "" {
		c.Dev.Host = DefaultHost
	}
	if c.Dev.Watch == nil {
		c.Dev.Watch = []string{"src", "public"}
	}

	if c.Template == "" {
		c.Template = DefaultTemplate
	}

	if c.Build.Output == "" {
		c.Build.Output = DefaultOutput
	}

	if c.Bundler.Command == "" {
		c.Bundler.Command = "esbuild"
	}
	if c.Bundler.Runtime == "" {
		c.Bundler.Runtime = "node"
	}
}

// Validate checks structural configuration values. Target-level rules
// (duplicate names, colliding prefixes) are checked by the target registry.
func (c *Config) Validate() error {
	if c.Dev.Port < 0 || c.Dev.Port > 65535 {
		return errors.New("E109").
			WithDetail("dev.port must be between 0 and 65535")
	}
	if c.Client.Entry == "" {
		return errors.New("E101")
	}
	if c.SSR.Entry == "" {
		return errors.New("E102")
	}
	return nil
}

// DevAddress returns the address string for the dev server.
func (c *Config) DevAddress() string {
	return fmt.Sprintf("%s:%d", c.Dev.Host, c.Dev.Port)
}

// DevURL returns the full URL for the dev server.
func (c *Config) DevURL() string {
	return "http://" + c.DevAddress()
}

// OutputPath returns the absolute path to the build output root.
func (c *Config) OutputPath() string {
	if filepath.IsAbs(c.Build.Output) {
		return c.Build.Output
	}
	return filepath.Join(c.Dir(), c.Build.Output)
}

// TemplatePath returns the absolute path to the HTML template.
func (c *Config) TemplatePath() string {
	if filepath.IsAbs(c.Template) {
		return c.Template
	}
	return filepath.Join(c.Dir(), c.Template)
}

// EntryPath resolves a target entry path against the project root.
func (c *Config) EntryPath(entry string) string {
	if filepath.IsAbs(entry) {
		return entry
	}
	return filepath.Join(c.Dir(), entry)
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	path := filepath.Join(dir, ConfigFileName)
	_, err := os.Stat(path)
	return err == nil
}

// FindProjectRoot walks up directories to find the project root.
// Returns the directory containing loom.json, or an error if not found.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("E501").
				WithDetail("No loom.json found in " + startDir + " or any parent directory").
				WithSuggestion("Run 'loom create' to scaffold a new project")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration from the current working directory.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root, err := FindProjectRoot(wd)
	if err != nil {
		return nil, err
	}

	return Load(root)
}
