package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

var (
	configFile string = getEnv("CONFIG_FILE", "config.json")
)

func readConfig() (*Config, error) {
	// Start from defaults so a missing config file still yields a
	// runnable (test) configuration
	config := &Config{
		UpstreamBaseURL:     "https://anam.kumc.or.kr/api/v1",
		DefaultHospitalCode: "AA",
		SecretKey:           "change-me-in-production",
		TokenTTLMinutes:     60,
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file:%s", err)
		}
	} else if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing JSON:%s", err)
	}

	// Environment overrides
	config.SecretKey = getEnv("SECRET_KEY", config.SecretKey)
	config.UpstreamBaseURL = getEnv("UPSTREAM_BASE_URL", config.UpstreamBaseURL)

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
