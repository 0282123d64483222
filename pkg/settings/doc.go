// Package settings provides the runtime tuning knobs consumed by the
// credential pool and the retry orchestrator.
//
// Settings are read fresh on every request through the Provider
// interface; nothing in the core caches a snapshot across requests.
// The file-backed provider reloads its YAML source on change via
// fsnotify, so operators can retune rotation cadence, retry budget,
// and load-balancing strategy without a restart.
package settings
