// Package codes generates short human-friendly access codes with a
// collision-free guarantee against a caller-supplied set of existing codes.
package codes

import (
	"crypto/rand"
	"fmt"
	"strings"

	"pawdesk/internal/types"
)

// Alphabet is the code symbol set. Visually ambiguous characters (0/O, 1/I/L)
// are excluded so codes survive being read aloud or handwritten.
const Alphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// DefaultMaxAttempts bounds the number of consecutive collisions tolerated
// before generation gives up. With an 8-character code the space exceeds 10^11
// combinations, so hitting this limit in practice signals a bug or a nearly
// full code table, not bad luck.
const DefaultMaxAttempts = 10

// Generate returns a random code of the given length drawn uniformly from
// Alphabet using crypto/rand with rejection sampling, so no symbol is favored
// by modulo bias.
func Generate(length int) (string, error) {
	if length < types.MinCodeLength || length > types.MaxCodeLength {
		return "", types.NewAppError(types.ErrCodeValidationCodeLength,
			fmt.Sprintf("code length %d outside [%d, %d]", length, types.MinCodeLength, types.MaxCodeLength), nil)
	}

	// Largest multiple of len(Alphabet) below 256; bytes at or above it are
	// rejected to keep the distribution uniform.
	limit := byte(256 - (256 % len(Alphabet)))

	out := make([]byte, 0, length)
	buf := make([]byte, length*2)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", types.NewAppError(types.ErrCodeInternalUnexpected, "random source failure", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// GenerateUnique returns a code of the given length that does not collide,
// case-insensitively, with any code in existing. After maxAttempts consecutive
// collisions it returns an AppError with code internal_code_space_exhausted.
// Pass maxAttempts <= 0 to use DefaultMaxAttempts.
//
// The function is pure over the supplied set: reserving the returned code is
// the caller's job, typically via a unique index on the codes table.
func GenerateUnique(existing map[string]struct{}, length, maxAttempts int) (string, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	taken := make(map[string]struct{}, len(existing))
	for code := range existing {
		taken[strings.ToUpper(code)] = struct{}{}
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		code, err := Generate(length)
		if err != nil {
			return "", err
		}
		if _, collides := taken[code]; !collides {
			return code, nil
		}
	}

	return "", types.NewAppErrorWithDetails(types.ErrCodeCodeSpaceExhausted,
		"could not generate a unique code", nil,
		map[string]any{"length": length, "attempts": maxAttempts, "existing": len(existing)})
}
