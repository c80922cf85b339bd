// Package config loads, normalizes, and validates docarchive configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads optional .env files, and honours
// environment fallbacks such as DOCARCHIVE_LLM_API_KEY. Every threshold the
// normalizer, duplicate resolver, and ingestion pipeline consult lives here so
// the daemon and CLI agree on one set of values.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
