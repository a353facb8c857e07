// Package config handles loading and validating Gray Logic Relay configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Ubidots API keys and MQTT passwords should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - A key starting with "YOUR_" is rejected so a sample config cannot be deployed
//
// Performance Characteristics:
//   - Configuration is loaded once at startup
//   - The account key list and cache TTL are immutable after load
//
// Usage:
//
//	cfg, err := config.Load("configs/relay.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	keys, _ := cfg.Ubidots.Keys()
package config
