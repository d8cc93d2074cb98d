package ingest

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type urlFile struct {
	URLs []string `yaml:"urls"`
}

// LoadURLs reads a YAML file of the form
//
//	urls:
//	  - https://tiki.vn/...
//
// Blank entries are dropped; order is kept.
func LoadURLs(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read url list: %w", err)
	}
	var f urlFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse url list %s: %w", path, err)
	}
	urls := make([]string, 0, len(f.URLs))
	for _, u := range f.URLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return urls, nil
}
