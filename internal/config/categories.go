package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Category maps one annotation category to its remote objects: the metadata
// feed, the two source asset folders, the two pointer destination folders
// and the two per-side decision logs. This is external configuration, not
// engine behavior.
type Category struct {
	FeedID     string `yaml:"feed_id"`
	SrcHypo    string `yaml:"src_hypo"`
	SrcAdv     string `yaml:"src_adv"`
	DstHypo    string `yaml:"dst_hypo"`
	DstAdv     string `yaml:"dst_adv"`
	LogHypo    string `yaml:"log_hypo"`
	LogAdv     string `yaml:"log_adv"`
	HypoPrefix string `yaml:"hypo_prefix"`
	AdvPrefix  string `yaml:"adv_prefix"`
}

// Categories is the category table keyed by category name.
type Categories map[string]Category

// LoadCategories reads the category table from a YAML file.
func LoadCategories(path string) (Categories, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open categories file: %w", err)
	}
	defer file.Close()

	var wrapper struct {
		Categories Categories `yaml:"categories"`
	}
	if err := yaml.NewDecoder(file).Decode(&wrapper); err != nil {
		return nil, fmt.Errorf("decode categories file: %w", err)
	}
	if len(wrapper.Categories) == 0 {
		return nil, fmt.Errorf("categories file %s defines no categories", path)
	}
	for name, cat := range wrapper.Categories {
		if cat.FeedID == "" || cat.LogHypo == "" || cat.LogAdv == "" {
			return nil, fmt.Errorf("category %q missing feed_id or log ids", name)
		}
	}
	return wrapper.Categories, nil
}

// Names returns the category names in stable order.
func (c Categories) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
