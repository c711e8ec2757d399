// Package config provides configuration structures and utilities for salvage.
// It defines the recovery run options populated from CLI flags and the
// salvage.yml file format for custom format signatures and size overrides.
package config
