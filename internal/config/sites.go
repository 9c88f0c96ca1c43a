package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	apperrors "agentscan/pkg/errors"
	"agentscan/pkg/workflow"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const DefaultSitesFile = "config.json"

type SitesFile struct {
	Sites []workflow.SiteConfig `json:"sites" yaml:"sites" mapstructure:"sites"`
}

// LoadSites reads the target list. Any problem with the file is fatal for
// the run, so everything comes back as a ConfigError.
func LoadSites(path string) ([]workflow.SiteConfig, error) {
	if path == "" {
		path = DefaultSitesFile
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.WrapConfigError("sites", path, "config file not found", err)
		}
		return nil, apperrors.WrapConfigError("sites", path, "cannot access config file", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext == "" {
		v.SetConfigType("json")
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, apperrors.WrapConfigError("sites", path, "invalid config file format", err)
	}

	var file SitesFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, apperrors.WrapConfigError("sites", path, "cannot decode sites", err)
	}
	if len(file.Sites) == 0 {
		return nil, apperrors.NewConfigError("sites", path, "no sites found in config")
	}

	// duplicates are kept; each occurrence gets its own session
	for i, site := range file.Sites {
		domain := strings.TrimSpace(site.Domain)
		if domain == "" {
			return nil, apperrors.NewConfigError(fmt.Sprintf("sites[%d].domain", i), site.Domain, "domain is required")
		}
		file.Sites[i].Domain = domain
	}
	return file.Sites, nil
}

func SampleSites() SitesFile {
	return SitesFile{Sites: []workflow.SiteConfig{
		{Domain: "scanme.nmap.org", Description: "Public test host provided by the Nmap project"},
		{Domain: "example.com", Description: "Corporate marketing site behind a CDN"},
	}}
}

// WriteSampleSites writes a sample sites file. It refuses to replace an
// existing file unless overwrite is set.
func WriteSampleSites(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return apperrors.NewConfigError("sites", path, "file already exists")
		}
	}

	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(SampleSites(), "", "  ")
	} else {
		data, err = yaml.Marshal(SampleSites())
	}
	if err != nil {
		return fmt.Errorf("marshal sample sites: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
