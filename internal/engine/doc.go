// Package engine wires configuration into a ready-to-run pipeline
// orchestrator: catalog, TTS provider, ffmpeg runner, artifact store,
// publisher and telemetry.
package engine
