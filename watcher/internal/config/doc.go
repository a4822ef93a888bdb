// Package config loads and watches the watcher configuration file.
//
// Top-level types:
//   - Config{Watcher, Feed, Notify, Store, HTTP}: full config tree parsed from YAML
//   - WatcherConfig: poll_interval, fetch/notify/store timeouts, shutdown_timeout
//   - FeedConfig: base_url, uptime_path, timeline_path, auth, tls
//   - NotifyConfig: type (slack|teams|http|kafka|log), url / url_env, kafka, retry
//   - StoreConfig: backend (memory|file|sqlite|redis|postgres) and backend options
//   - Overrides: flag and environment values layered over the file
//
// Load(path, overrides) starts from Default(), decodes the YAML file when a
// path is given, applies overrides, then validates. Secrets (webhook URLs,
// API keys, DSNs) are referenced by environment variable name and resolved
// at use time.
//
// Watch(ctx, path, overrides, onChange) watches the file's directory with
// fsnotify, coalesces event bursts, and calls onChange with the newly parsed
// Config when the file content actually changed.
package config
