// Package crypto provides the hashing and key primitives used by TruthStamp.
package crypto

import (
	"github.com/Klingon-tech/truthstamp/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// AddressFromPubKey derives an address from a compressed public key.
// Address = BLAKE3(compressed_pubkey)[:20].
func AddressFromPubKey(pubKey []byte) types.Address {
	h := Hash(pubKey)
	var addr types.Address
	copy(addr[:], h[:types.AddressSize])
	return addr
}

// ChainHash links a record to its predecessor: BLAKE3(prev || data).
func ChainHash(prev types.Hash, data []byte) types.Hash {
	hasher := blake3.New()
	hasher.Write(prev[:])
	hasher.Write(data)
	var out types.Hash
	copy(out[:], hasher.Sum(nil))
	return out
}
