// Package ingress accepts transcripts from remote recognizers over a signed
// webhook.
//
// A recognizer running elsewhere (a phone, a laptop with a better mic) POSTs
// JSON to the configured path:
//
//	{"text": "앉아", "final": true}
//
// The body must be signed with HMAC-SHA256 over the raw bytes using the shared
// secret, sent as "sha256=<hex>" (or bare hex) in the signature header
// (default X-Signature-256). Verification is constant-time, and every failure
// is reported as a generic 403.
//
// Accepted transcripts go through the same engine path as local speech; the
// 202 response carries the dispatch outcome.
package ingress
