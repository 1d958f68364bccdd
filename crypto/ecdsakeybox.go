package crypto

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/aleph-forkalert/forkalert/types"
)

// ECDSAKeyBox is a KeyBox backed by secp256k1 ECDSA, the signing curve the
// teacher repository uses throughout for on-chain and wire signatures.
type ECDSAKeyBox struct {
	index types.NodeIndex
	priv  *btcec.PrivateKey
	// pub holds the public key of every member of the session, keyed by
	// index, so Verify can check a signature claimed to be by any node.
	pub map[types.NodeIndex]*btcec.PublicKey
}

// NewECDSAKeyBox builds a KeyBox for node index signing with priv, able to
// verify signatures from every node in pub (which should include priv's own
// public key under index).
func NewECDSAKeyBox(index types.NodeIndex, priv *btcec.PrivateKey, pub map[types.NodeIndex]*btcec.PublicKey) *ECDSAKeyBox {
	return &ECDSAKeyBox{index: index, priv: priv, pub: pub}
}

// Index implements KeyBox.
func (k *ECDSAKeyBox) Index() types.NodeIndex {
	return k.index
}

// Sign implements KeyBox.
func (k *ECDSAKeyBox) Sign(data []byte) Signature {
	digest := chainhash.DoubleHashB(data)
	sig := ecdsa.Sign(k.priv, digest)
	return serializeSignature(sig)
}

// Verify implements KeyBox.
func (k *ECDSAKeyBox) Verify(node types.NodeIndex, data []byte, sig Signature) bool {
	pub, ok := k.pub[node]
	if !ok {
		return false
	}
	parsed, err := deserializeSignature(sig)
	if err != nil {
		return false
	}
	digest := chainhash.DoubleHashB(data)
	return parsed.Verify(digest, pub)
}

// serializeSignature returns the DER encoding of sig, the same
// representation the teacher's on-chain signatures use.
func serializeSignature(sig *ecdsa.Signature) Signature {
	return Signature(sig.Serialize())
}

func deserializeSignature(sig Signature) (*ecdsa.Signature, error) {
	return ecdsa.ParseDERSignature(sig)
}
