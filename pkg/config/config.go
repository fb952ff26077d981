package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/sidkik/dfsync/pkg/errors"
)

// parseErrTemplate is shown when the config can't be decoded. The yaml
// library loses the position of the error, so only its message is passed
// on.
const parseErrTemplate = "The dfsync config %q could not be parsed.\n" +
	"Settings belong under the `server` or `client` section, for example:\n\n" +
	"  version: " + SupportedConfigVersion + "\n" +
	"  server:\n" +
	"    directory: /srv/share\n" +
	"  client:\n" +
	"    user: alice\n\n" +
	"For reference, here is the error from the parser:\n" +
	"%s"

// homedirExpand will be overridden in mock tests
var homedirExpand = homedir.Expand

type incompatibleVersionError struct {
	path, exp, actual string
}

func (err incompatibleVersionError) Error() string {
	return err.FriendlyMessage()
}

func (err incompatibleVersionError) FriendlyMessage() string {
	return fmt.Sprintf("The config %q was written for a different version "+
		"of dfsync.\nExpected version %q, but got %q.", err.path, err.exp, err.actual)
}

// ParseConfig reads the config at `path`. Settings missing from the file,
// or a missing file, fall back to Default().
func ParseConfig(path string) (Config, error) {
	path, err := homedirExpand(path)
	if err != nil {
		return Config{}, errors.WithContext(err, "expand config path")
	}

	contents, err := afero.ReadFile(fs, path)
	if err != nil {
		if isPathNotFoundError(err) {
			return Default(), nil
		}
		return Config{}, errors.WithContext(err, "read")
	}

	config, err := decode(path, contents)
	if err != nil {
		return Config{}, errors.WithContext(err, "parse")
	}
	return config, nil
}

// WriteConfig writes `cfg` to `path`.
func WriteConfig(path string, cfg Config) error {
	cfg.Version = SupportedConfigVersion
	path, err := homedirExpand(path)
	if err != nil {
		return errors.WithContext(err, "expand config path")
	}

	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if err := afero.WriteFile(fs, path, yamlBytes, 0644); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

// decode parses `contents` on top of the defaults, and resolves the paths it
// contains relative to `path`.
func decode(path string, contents []byte) (Config, error) {
	// Check the version before anything else so that configs for other
	// versions fail with a version error rather than a field error.
	var header struct {
		Version string `json:"version"`
	}
	if err := yaml.Unmarshal(contents, &header); err != nil {
		return Config{}, errors.NewFriendlyError(parseErrTemplate, path, err)
	}

	version := header.Version
	if version == "" {
		version = InitialConfigVersion
	}
	if version != SupportedConfigVersion {
		return Config{}, incompatibleVersionError{path, SupportedConfigVersion, version}
	}

	config := Default()
	err := yaml.UnmarshalStrict(contents, &config, yaml.DisallowUnknownFields)
	if err != nil {
		return Config{}, errors.NewFriendlyError(parseErrTemplate, path, err)
	}
	config.Version = version

	if err := config.resolvePaths(path); err != nil {
		return Config{}, err
	}
	return config, nil
}

// resolvePaths expands `~` in every path setting, and makes relative paths
// relative to the directory containing the config.
func (c *Config) resolvePaths(configPath string) error {
	paths := []struct {
		name  string
		value *string
	}{
		{"server.directory", &c.Server.Directory},
		{"server.auditLog", &c.Server.AuditLog},
		{"client.directory", &c.Client.Directory},
	}

	for _, p := range paths {
		expanded, err := homedir.Expand(*p.value)
		if err != nil {
			return errors.WithContext(err, "expand "+p.name)
		}

		if expanded != "" && !filepath.IsAbs(expanded) {
			expanded = filepath.Join(filepath.Dir(configPath), expanded)
		}
		*p.value = expanded
	}
	return nil
}

func isPathNotFoundError(err error) bool {
	if fileErr, ok := err.(*os.PathError); ok {
		return os.IsNotExist(fileErr.Err)
	}
	return os.IsNotExist(err)
}
