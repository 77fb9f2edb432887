// Package config provides configuration types and loading for the
// clusterdesk server.
//
// Configuration is read from a YAML file with ${VAR} and ${VAR:-default}
// environment substitution, completed with defaults and then validated.
//
//	cfg, err := config.Load("clusterdesk.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// An empty path yields the defaults.
package config
