package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultSite is the key of the site used when none is configured.
const DefaultSite = "kindai/higashi-osaka"

// Site describes one institution's portal deployment. Values are never
// mutated after construction.
type Site struct {
	Code      string `yaml:"code,omitempty"`
	Name      string `yaml:"name"`
	Campus    string `yaml:"campus"`
	BaseURL   string `yaml:"base_url"`
	LoginPath string `yaml:"login_path,omitempty"`
}

var builtinSites = map[string]Site{
	"kindai/higashi-osaka": {
		Code:      "F127310108116",
		Name:      "近畿大学",
		Campus:    "東大阪キャンパス",
		BaseURL:   "https://unipa.itp.kindai.ac.jp",
		LoginPath: "/up/faces/login/Com00501A.jsp",
	},
	"kindai/osaka-sayama": {
		Name:      "近畿大学",
		Campus:    "大阪狭山キャンパス",
		BaseURL:   "https://med-unipa.itp.kindai.ac.jp",
		LoginPath: "/up/faces/login/Com00501A.jsp",
	},
}

// BuiltinSites returns a copy of the built-in site table.
func BuiltinSites() map[string]Site {
	out := make(map[string]Site, len(builtinSites))
	for k, v := range builtinSites {
		out[k] = v
	}
	return out
}

// LookupSite returns the built-in site registered under key.
func LookupSite(key string) (Site, bool) {
	site, ok := builtinSites[key]
	return site, ok
}

type sitesFile struct {
	Sites map[string]Site `yaml:"sites"`
}

// LoadSites reads a YAML document of the form
//
//	sites:
//	  example/main:
//	    name: Example University
//	    base_url: https://portal.example.ac.jp
//	    login_path: /up/faces/login/Com00501A.jsp
func LoadSites(path string) (map[string]Site, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sites file: %w", err)
	}

	var doc sitesFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse sites file: %w", err)
	}
	for key, site := range doc.Sites {
		if site.BaseURL == "" {
			return nil, fmt.Errorf("site %q: base_url cannot be empty", key)
		}
	}
	return doc.Sites, nil
}
