// Package config loads typed configuration structs from environment
// variables using caarlos0/env struct tags.
//
// A .env file in the working directory is loaded once, before the first
// Parse call, so local development does not require exporting variables
// manually. Missing .env files are ignored.
//
// Usage:
//
//	type PGConfig struct {
//		ConnURL string `env:"PG_CONN_URL,required"`
//		MaxConns int32 `env:"PG_MAX_CONNS" envDefault:"10"`
//	}
//
//	var cfg PGConfig
//	if err := config.Load(&cfg); err != nil {
//		log.Fatal(err)
//	}
package config
