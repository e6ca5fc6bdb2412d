package roomcode

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Alphabet used for room codes: unambiguous when read aloud or typed from a
// phone, matching what players see on screen.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultLength is the room code length used when none is configured.
const DefaultLength = 6

// RandSource interface for dependency injection of randomness
type RandSource interface {
	Intn(n int) int
}

// Generator mints room codes with configurable length and randomness
type Generator struct {
	length     int
	randSource RandSource
}

// NewGenerator creates a generator. A nil RandSource means crypto/rand.
func NewGenerator(length int, randSource RandSource) *Generator {
	if length <= 0 {
		length = DefaultLength
	}
	return &Generator{length: length, randSource: randSource}
}

// Generate creates a new room code
func (g *Generator) Generate() string {
	code := make([]byte, g.length)

	if g.randSource != nil {
		for i := range code {
			code[i] = alphabet[g.randSource.Intn(len(alphabet))]
		}
		return string(code)
	}

	buf := make([]byte, g.length)
	if _, err := rand.Read(buf); err != nil {
		panic("failed to generate random bytes: " + err.Error())
	}
	for i, b := range buf {
		code[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(code)
}

// GenerateUnused keeps generating until taken reports an unused code.
func (g *Generator) GenerateUnused(taken func(string) bool) string {
	code := g.Generate()
	for taken(code) {
		code = g.Generate()
	}
	return code
}

// Validate checks that a room code has the expected length and alphabet
func (g *Generator) Validate(code string) error {
	if len(code) != g.length {
		return fmt.Errorf("room code must be exactly %d characters, got %d", g.length, len(code))
	}
	for i, char := range code {
		if !strings.ContainsRune(alphabet, char) {
			return fmt.Errorf("invalid character %c at position %d", char, i)
		}
	}
	return nil
}
