package config

import "fmt"

type MapsConfig struct {
	GoogleMaps *GoogleMapsConfig `yaml:"google_maps"`
	Language   string            `yaml:"language"`
}

type GoogleMapsConfig struct {
	APIKey string `yaml:"api_key"`
}

func loadMapsConfig() *MapsConfig {
	return &MapsConfig{
		GoogleMaps: &GoogleMapsConfig{
			APIKey: getEnv("GOOGLE_MAPS_API_KEY", ""),
		},
		Language: getEnv("MAPS_LANGUAGE", "en"),
	}
}

func (c *MapsConfig) validate() error {
	if c.GoogleMaps.APIKey != "" && c.Language == "" {
		return fmt.Errorf("MAPS_LANGUAGE must not be empty")
	}
	return nil
}
