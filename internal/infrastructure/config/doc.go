// Package config handles loading and validating gdogen configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// The configuration file is optional. Without one, defaults apply and
// environment variables can still override them.
//
// Usage:
//
//	cfg, err := config.Load("gdogen.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Output.Dir)
package config
