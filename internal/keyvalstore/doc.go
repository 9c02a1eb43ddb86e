// Package keyvalstore maintains the on-disk byte store.
//
// It presents an ordered map from byte key to either a single value or a
// sorted set of duplicate members, with serializable read-write
// transactions, on top of BadgerDB. Badger has no native sorted-duplicates
// support, so a duplicate set under key K is laid out as one physical row
// per member:
//
//	K ++ 0x00 ++ member        - duplicate-set membership
//	                             data: empty
//	K                          - single-value row
//	                             data: value bytes
//
// Notes:
//  1. ++   = concatenation of byte data
//  2. 0x00 sorts before every other byte, so the members of K form one
//     contiguous run ordered lexicographically by member bytes
//  3. the 0x00 boundary is not escaped; callers keep member-bearing keys
//     and single-value keys in separate namespaces
//  4. adding a member that is already present is a successful no-op
package keyvalstore
