// Package router implements the translation core's single entry
// point: per-request backend selection and fallback across the local
// engine, the subprocess server, and the cloud relay, with the
// Quota/License Gate consulted before and after the cloud leg.
package router
