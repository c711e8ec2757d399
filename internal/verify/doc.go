// Package verify computes content digests over extracted bytes and
// applies the acceptance policy that keeps the catalog free of empty and
// duplicate artifacts. SHA-256 is the default; BLAKE2b-256 is available
// for large sources where hashing dominates run time.
package verify
