package config

import "fmt"

type PushConfig struct {
	FCM  *FCMConfig  `yaml:"fcm"`
	APNS *APNSConfig `yaml:"apns"`
}

type FCMConfig struct {
	ProjectID   string `yaml:"project_id"`
	Credentials string `yaml:"credentials_file"`
}

type APNSConfig struct {
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	BundleID   string `yaml:"bundle_id"`
	KeyFile    string `yaml:"key_file"`
	Production bool   `yaml:"production"`
}

func loadPushConfig() *PushConfig {
	return &PushConfig{
		FCM: &FCMConfig{
			ProjectID:   getEnv("FCM_PROJECT_ID", ""),
			Credentials: getEnv("FCM_CREDENTIALS_FILE", ""),
		},
		APNS: &APNSConfig{
			KeyID:      getEnv("APNS_KEY_ID", ""),
			TeamID:     getEnv("APNS_TEAM_ID", ""),
			BundleID:   getEnv("APNS_BUNDLE_ID", ""),
			KeyFile:    getEnv("APNS_KEY_FILE", ""),
			Production: getEnvAsBool("APNS_PRODUCTION", false),
		},
	}
}

func (c *PushConfig) validate() error {
	if c.FCM.Credentials != "" && c.FCM.ProjectID == "" {
		return fmt.Errorf("FCM_PROJECT_ID is required when FCM_CREDENTIALS_FILE is set")
	}
	a := c.APNS
	if a.KeyFile != "" && (a.KeyID == "" || a.TeamID == "" || a.BundleID == "") {
		return fmt.Errorf("APNS_KEY_ID, APNS_TEAM_ID and APNS_BUNDLE_ID are required with APNS_KEY_FILE")
	}
	return nil
}
