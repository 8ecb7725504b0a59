package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"
)

// Fingerprint is a deterministic cache key derived from the semantic inputs
// of a computation. It has the form "<kind>:<hex sha256>".
type Fingerprint string

// Kinds of cached artifacts.
const (
	KindQuestions = "questions"
	KindFeedback  = "feedback"
)

// NewFingerprint hashes parts with length prefixes so ("ab","c") and
// ("a","bc") never collide.
func NewFingerprint(kind string, parts ...string) Fingerprint {
	h := sha256.New()
	var size [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(size[:], uint64(len(p)))
		h.Write(size[:])
		h.Write([]byte(p))
	}
	return Fingerprint(kind + ":" + hex.EncodeToString(h.Sum(nil)))
}

// ContentHash returns the hex sha256 of text. Used to fingerprint large
// inputs such as resume text without keeping them around.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Kind returns the artifact kind the fingerprint was built for.
func (f Fingerprint) Kind() string {
	kind, _, ok := strings.Cut(string(f), ":")
	if !ok {
		return "unknown"
	}
	return kind
}

func (f Fingerprint) String() string { return string(f) }
