package state

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Domain tags for derived record addresses. The full addressing scheme is
// part of the wire contract: compatible clients must reproduce it bit for bit.
const (
	TagConfig   = "config"
	TagUsername = "username"
	TagCreator  = "creator"
	TagAccess   = "access"
)

// Derive maps a domain tag and an ordered tuple of seeds to the unique state
// address of a record: keccak256(tag || seed_1 || seed_2 || ...). The same
// inputs always produce the same address, and the store's create-if-absent
// semantics on that address are what give registrations and receipts their
// uniqueness without any secondary index.
func Derive(tag string, seeds ...[]byte) [32]byte {
	size := len(tag)
	for _, seed := range seeds {
		size += len(seed)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, tag...)
	for _, seed := range seeds {
		buf = append(buf, seed...)
	}
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(buf))
	return out
}

// DeriveWithNonce returns the derived address together with its derivation
// nonce. Hash-based derivation has no curve constraint to search around, so
// the nonce is always zero; it is kept on the wire for clients that expect
// the (address, nonce) pair.
func DeriveWithNonce(tag string, seeds ...[]byte) ([32]byte, uint8) {
	return Derive(tag, seeds...), 0
}

// ContentSeed encodes a content id as the 8-byte little-endian seed used in
// access receipt derivation.
func ContentSeed(id uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, id)
	return buf
}

// ConfigAddress returns the well-known address of the protocol config
// singleton.
func ConfigAddress() [32]byte {
	return Derive(TagConfig)
}

// UsernameAddress returns the record address for a normalized username.
func UsernameAddress(username string) [32]byte {
	return Derive(TagUsername, []byte(username))
}

// CreatorAddress returns the record address for a creator identity.
func CreatorAddress(owner [20]byte) [32]byte {
	return Derive(TagCreator, owner[:])
}

// AccessAddress returns the receipt address for a (buyer, content) pair.
func AccessAddress(buyer [20]byte, contentID uint64) [32]byte {
	return Derive(TagAccess, buyer[:], ContentSeed(contentID))
}
