package cid

import (
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
)

// Raw CID layout: <cid-version><codec><hash-func><digest-length><digest>.
// The daemon produces the same bytes for sha2-256 raw-leaf adds, so the
// client-side and server-side identifiers agree for identical content.
const (
	cidVersion = 0x01 // CIDv1
	codecRaw   = 0x55 // raw binary codec
	hashSHA256 = 0x12 // sha2-256 multihash function code
	digestSize = sha256.Size

	// EncodedLength is the length of every derived identifier:
	// "b" prefix plus hex of the 36 raw bytes.
	EncodedLength = 1 + 2*(4+digestSize)
)

// multibase32 is the alphabet behind the multibase "b" prefix (RFC 4648
// lowercase, unpadded), which is how IPFS daemons print CIDv1 strings.
var multibase32 = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// Derive computes the content identifier for the given bytes. It is pure
// and deterministic: identical input always yields the identical string.
func Derive(data []byte) string {
	digest := sha256.Sum256(data)
	return FromDigest(digest[:])
}

// FromDigest builds the identifier for a precomputed SHA-256 digest.
func FromDigest(digest []byte) string {
	raw := make([]byte, 0, 4+digestSize)
	raw = append(raw, cidVersion, codecRaw, hashSHA256, digestSize)
	raw = append(raw, digest...)

	return "b" + strings.ToUpper(hex.EncodeToString(raw))
}

// Normalize re-encodes an identifier into the canonical form produced by
// Derive. It accepts the canonical form itself and the multibase base32
// form daemons answer with ("bafk..."); both name the same raw CID bytes,
// so normalizing keeps the two ingestion paths colliding on one string.
func Normalize(s string) (string, error) {
	if Valid(s) {
		return s, nil
	}

	if len(s) < 2 || s[0] != 'b' {
		return "", fmt.Errorf("unrecognized content identifier: %q", s)
	}

	raw, err := multibase32.DecodeString(s[1:])
	if err != nil {
		return "", fmt.Errorf("unrecognized content identifier: %q", s)
	}
	if len(raw) != 4+digestSize || raw[0] != cidVersion || raw[1] != codecRaw ||
		raw[2] != hashSHA256 || raw[3] != digestSize {
		return "", fmt.Errorf("unsupported content identifier layout: %q", s)
	}

	return FromDigest(raw[4:]), nil
}

// Valid reports whether s is a well-formed identifier as produced by
// Derive. It checks shape only, not that the digest matches any content.
func Valid(s string) bool {
	if len(s) != EncodedLength || s[0] != 'b' {
		return false
	}

	raw, err := hex.DecodeString(s[1:])
	if err != nil {
		return false
	}

	// Derive emits uppercase hex; reject mixed-case variants so the
	// uniqueness constraint cannot be bypassed by re-encoding.
	if s[1:] != strings.ToUpper(s[1:]) {
		return false
	}

	return raw[0] == cidVersion && raw[1] == codecRaw &&
		raw[2] == hashSHA256 && raw[3] == digestSize
}
