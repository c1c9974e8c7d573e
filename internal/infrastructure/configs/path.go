package configs

import (
	"flag"
	"os"

	"github.com/hilthontt/buzzer/internal/infrastructure/env"
)

var configFlag = flag.String("config", "", "path to config file")

// DetermineConfigPath resolves the config file from --config, BUZZER_CONFIG
// or a list of conventional locations. An empty result means defaults only.
func DetermineConfigPath() string {
	if !flag.Parsed() {
		flag.Parse()
	}
	configPath := *configFlag

	if configPath == "" {
		configPath = env.GetString("BUZZER_CONFIG", "")
	}

	if configPath == "" {
		candidates := []string{
			"./config.yaml",
			"./config.yml",
			"./configs/config.yaml",
			"/etc/buzzer/config.yaml",
			"/app/config.yaml",
		}

		for _, p := range candidates {
			if _, err := os.Stat(p); err == nil {
				configPath = p
				break
			}
		}
	}

	return configPath
}
