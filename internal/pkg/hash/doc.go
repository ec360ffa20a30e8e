// Package hash turns short-lived secrets into keyed digests.
//
// Only the digest is stored; input is checked by hashing it again and
// comparing in constant time. The key lives in configuration, never next to
// the digests.
package hash
