// Package observe provides the logging, metrics, and tracing used across
// the cache tiers, the fetch orchestrator, and the admin server.
//
// Logger writes JSON lines and redacts fields whose keys look like
// credentials. Metrics and Tracer are thin OpenTelemetry wrappers keyed by
// Operation. Observer builds the providers from Config and owns their
// shutdown; the exporters subpackage selects stdout, otlp, or prometheus
// output.
package observe
