// Package instrumentation provides OpenTelemetry metrics and tracing for
// the OAuth server: counters and histograms for the grant, exchange,
// validation, refresh, and revocation paths, plus security signals such as
// PKCE failures and authorization code replay. When disabled it installs
// no-op providers with zero overhead.
package instrumentation
