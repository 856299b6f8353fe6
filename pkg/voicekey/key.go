// Package voicekey builds deterministic cache keys for synthesized speech.
package voicekey

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Key identifies one logical voice request.
type Key struct {
	AgentID string
	Text    string // normalized
	Emotion string
	Version int
}

// Build normalizes the inputs and returns the key. It has no side effects.
func Build(agentID, text, emotion string, version int) Key {
	return Key{
		AgentID: normalizeLabel(agentID),
		Text:    NormalizeText(text),
		Emotion: normalizeLabel(emotion),
		Version: version,
	}
}

// NormalizeText applies NFC, case folding and whitespace collapsing.
func NormalizeText(text string) string {
	folded := cases.Fold().String(norm.NFC.String(text))
	return strings.Join(strings.Fields(folded), " ")
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Digest is the hex SHA-256 of the length-prefixed key fields.
func (k Key) Digest() string {
	h := sha256.New()
	fmt.Fprintf(h, "%d:", k.Version)
	for _, f := range []string{k.AgentID, k.Emotion, k.Text} {
		fmt.Fprintf(h, "%d:%s", len(f), f)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// String is the hot-cache key.
func (k Key) String() string {
	return fmt.Sprintf("voice:v%d:%s:%s", k.Version, k.AgentID, k.Digest())
}

// Path is the cold-store object path.
func (k Key) Path() string {
	return fmt.Sprintf("v%d/%s/%s.audio", k.Version, k.AgentID, k.Digest())
}
