// Package config loads typed configuration structs from environment
// variables, with optional .env file support for local development.
//
// Each config type is parsed once per process and cached, so packages can
// declare their own config structs and call Load independently without
// re-reading the environment:
//
//	var cfg pgstore.Config
//	config.MustLoad(&cfg)
//
// Parsing is delegated to github.com/caarlos0/env; see its documentation for
// the supported `env` tag syntax.
package config
