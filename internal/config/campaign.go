package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// campaignFile is the on-disk layout of a discovery campaign.
type campaignFile struct {
	Targets []Target `yaml:"targets"`
}

// LoadCampaign reads discovery targets from a YAML file. Targets without a
// niche or location are rejected.
func LoadCampaign(path string) ([]Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read campaign %s", path)
	}

	var cf campaignFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, eris.Wrapf(err, "config: parse campaign %s", path)
	}

	for i, t := range cf.Targets {
		t.Niche = strings.TrimSpace(t.Niche)
		t.Location = strings.TrimSpace(t.Location)
		if t.Niche == "" || t.Location == "" {
			return nil, eris.Errorf("config: campaign %s: target %d needs niche and location", path, i)
		}
		cf.Targets[i] = t
	}
	return cf.Targets, nil
}
