// Package catalog loads the voice and background track catalog from YAML.
//
// Tracks without a declared duration are probed on first use; results are
// remembered in memory and, when a DurationCache is attached, persisted so
// restarts do not probe unchanged files again.
package catalog
