package crypto

import (
	"encoding/binary"
	"sort"

	"github.com/aleph-forkalert/forkalert/types"
)

// AggregateMultiKeychain implements MultiKeychain by collecting one ECDSA
// partial signature per signer; a multisignature is simply the set of
// partial signatures once it covers a quorum of members. There is no
// signature-aggregation scheme at the cryptographic level (unlike BLS), but
// the accumulation, quorum, and verification contract MultiKeychain
// describes is the same either way, and this is the concrete choice the
// reference implementation's mock keychains make for testing.
type AggregateMultiKeychain struct {
	*ECDSAKeyBox
	nMembers types.NodeCount
}

// NewAggregateMultiKeychain wraps box as a MultiKeychain for a session of
// nMembers participants.
func NewAggregateMultiKeychain(box *ECDSAKeyBox, nMembers types.NodeCount) *AggregateMultiKeychain {
	return &AggregateMultiKeychain{ECDSAKeyBox: box, nMembers: nMembers}
}

// NMembers implements MultiKeychain.
func (k *AggregateMultiKeychain) NMembers() types.NodeCount {
	return k.nMembers
}

// SignPartial implements MultiKeychain; a partial signature is just this
// node's ordinary signature, since verification is per-signer.
func (k *AggregateMultiKeychain) SignPartial(data []byte) Signature {
	return k.Sign(data)
}

// VerifyPartial implements MultiKeychain.
func (k *AggregateMultiKeychain) VerifyPartial(node types.NodeIndex, data []byte, sig Signature) bool {
	return k.Verify(node, data, sig)
}

// NewAccumulator implements MultiKeychain.
func (k *AggregateMultiKeychain) NewAccumulator(data []byte) PartialMultisignature {
	return &partialMultisig{
		keychain: k,
		data:     append([]byte(nil), data...),
		sigs:     make(map[types.NodeIndex]Signature),
	}
}

// DecodeMultisignature implements MultiKeychain: raw is the encoding
// produced by PartialMultisignature.Encode.
func (k *AggregateMultiKeychain) DecodeMultisignature(data []byte, raw []byte) (PartialMultisignature, bool) {
	acc := &partialMultisig{
		keychain: k,
		data:     append([]byte(nil), data...),
		sigs:     make(map[types.NodeIndex]Signature),
	}
	if err := acc.decode(raw); err != nil {
		return nil, false
	}
	for node, sig := range acc.sigs {
		if !k.VerifyPartial(node, data, sig) {
			return nil, false
		}
	}
	return acc, acc.Complete()
}

// partialMultisig is an immutable accumulation of verified partial
// signatures over one message.
type partialMultisig struct {
	keychain *AggregateMultiKeychain
	data     []byte
	sigs     map[types.NodeIndex]Signature
}

// AddSignature implements PartialMultisignature.
func (p *partialMultisig) AddSignature(node types.NodeIndex, sig Signature) PartialMultisignature {
	next := &partialMultisig{
		keychain: p.keychain,
		data:     p.data,
		sigs:     make(map[types.NodeIndex]Signature, len(p.sigs)+1),
	}
	for n, s := range p.sigs {
		next.sigs[n] = s
	}
	next.sigs[node] = sig
	return next
}

// Signers implements PartialMultisignature.
func (p *partialMultisig) Signers() int {
	return len(p.sigs)
}

// Complete implements PartialMultisignature.
func (p *partialMultisig) Complete() bool {
	return len(p.sigs) >= p.keychain.NMembers().Quorum()
}

// Encode implements PartialMultisignature: a simple count followed by
// (node, signature-length, signature) triples, sorted by node index so the
// result is deterministic.
func (p *partialMultisig) Encode() []byte {
	nodes := make([]types.NodeIndex, 0, len(p.sigs))
	for n := range p.sigs {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	buf := make([]byte, 0, 4+len(nodes)*16)
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(len(nodes)))
	buf = append(buf, tmp[:]...)
	for _, n := range nodes {
		sig := p.sigs[n]
		var h [2]byte
		binary.BigEndian.PutUint16(h[:], uint16(n))
		buf = append(buf, h[:]...)
		var l [2]byte
		binary.BigEndian.PutUint16(l[:], uint16(len(sig)))
		buf = append(buf, l[:]...)
		buf = append(buf, sig...)
	}
	return buf
}

func (p *partialMultisig) decode(raw []byte) error {
	if len(raw) < 4 {
		return errShortMultisig
	}
	count := binary.BigEndian.Uint32(raw[:4])
	raw = raw[4:]
	for i := uint32(0); i < count; i++ {
		if len(raw) < 4 {
			return errShortMultisig
		}
		node := types.NodeIndex(binary.BigEndian.Uint16(raw[:2]))
		l := binary.BigEndian.Uint16(raw[2:4])
		raw = raw[4:]
		if uint16(len(raw)) < l {
			return errShortMultisig
		}
		sig := append(Signature(nil), raw[:l]...)
		raw = raw[l:]
		p.sigs[node] = sig
	}
	return nil
}
