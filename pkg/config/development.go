package config

import "time"

func loadDevelopmentConfig(cfg *Config) {
	cfg.Environment = "development"
	cfg.DatabaseDebug = true
	cfg.DatabaseFilePath = "./tmp/readtrack.sqlite"
	cfg.ServerHost = "127.0.0.1"
}

func loadTestConfig(cfg *Config) {
	cfg.Environment = "test"
	cfg.DatabaseConnectRetryDelay = 10 * time.Millisecond
	cfg.DeleteRetryDelay = time.Millisecond
	cfg.ServerHost = "127.0.0.1"
}

func loadProductionConfig(cfg *Config) {
	cfg.Environment = "production"
}
