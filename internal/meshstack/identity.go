package meshstack

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/curve25519"
)

// identityFileSize is the raw keypair material persisted to disk: a 32-byte
// curve25519 encryption seed followed by a 32-byte ed25519 signing seed.
const identityFileSize = 64

// keypair holds an identity's private material. It never leaves this package
// and is never written to the event stream.
type keypair struct {
	encPriv []byte
	encPub  []byte
	sigPriv ed25519.PrivateKey
	sigPub  ed25519.PublicKey
}

func generateKeypair() (*keypair, error) {
	seed := make([]byte, identityFileSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generate identity material: %w", err)
	}
	return keypairFromSeed(seed)
}

func keypairFromSeed(seed []byte) (*keypair, error) {
	if len(seed) != identityFileSize {
		return nil, fmt.Errorf("identity material is %d bytes, want %d", len(seed), identityFileSize)
	}

	encPriv := make([]byte, 32)
	copy(encPriv, seed[:32])
	encPub, err := curve25519.X25519(encPriv, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive encryption public key: %w", err)
	}

	sigPriv := ed25519.NewKeyFromSeed(seed[32:])
	sigPub := sigPriv.Public().(ed25519.PublicKey)

	return &keypair{
		encPriv: encPriv,
		encPub:  encPub,
		sigPriv: sigPriv,
		sigPub:  sigPub,
	}, nil
}

// material returns the raw bytes persisted to the identity file.
func (k *keypair) material() []byte {
	out := make([]byte, 0, identityFileSize)
	out = append(out, k.encPriv...)
	out = append(out, k.sigPriv.Seed()...)
	return out
}

// publicKey returns the concatenated public key material.
func (k *keypair) publicKey() []byte {
	out := make([]byte, 0, len(k.encPub)+len(k.sigPub))
	out = append(out, k.encPub...)
	out = append(out, k.sigPub...)
	return out
}

// hash returns the identity's derived stable address fragment.
func (k *keypair) hash() string {
	sum := blake3.Sum256(k.publicKey())
	return hex.EncodeToString(sum[:])
}

// destinationHash derives an address hash from an identity hash and an
// application namespace. The derivation is deterministic.
func destinationHash(identityHash, namespace string) string {
	h := blake3.New()
	h.Write([]byte(namespace))
	h.Write([]byte(identityHash))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:32])
}
