// Package config loads the service configuration from GATEHOUSE_* environment
// variables and validates it before startup.
//
// Every setting has a sensible default except the Postgres URL, which is
// always required:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	db, err := postgres.Connect(ctx, cfg.Database)
package config
