// Package config defines the QuillDB configuration schema, loads it
// from YAML with defaults for unset keys, and optionally watches the
// file so a running store can pick up changes.
package config
