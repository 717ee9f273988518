package codes

import (
	"errors"
	"strings"
	"testing"

	"pawdesk/internal/types"
)

func TestGenerateUsesOnlyAlphabet(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := Generate(types.DefaultCodeLength)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if len(code) != types.DefaultCodeLength {
			t.Fatalf("len(%q) = %d, want %d", code, len(code), types.DefaultCodeLength)
		}
		for _, c := range code {
			if !strings.ContainsRune(Alphabet, c) {
				t.Fatalf("code %q contains %q outside the alphabet", code, c)
			}
		}
	}
}

func TestGenerateExcludesAmbiguousCharacters(t *testing.T) {
	for _, c := range "0O1IL" {
		if strings.ContainsRune(Alphabet, c) {
			t.Errorf("alphabet must not contain ambiguous character %q", c)
		}
	}
}

func TestGenerateRejectsBadLength(t *testing.T) {
	for _, length := range []int{0, types.MinCodeLength - 1, types.MaxCodeLength + 1} {
		_, err := Generate(length)
		if err == nil {
			t.Errorf("Generate(%d) should fail", length)
		}
	}
}

func TestGenerateUniqueNoDuplicates(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		code, err := GenerateUnique(seen, types.DefaultCodeLength, 0)
		if err != nil {
			t.Fatalf("GenerateUnique on draw %d: %v", i, err)
		}
		if _, dup := seen[code]; dup {
			t.Fatalf("duplicate code %q on draw %d", code, i)
		}
		seen[code] = struct{}{}
	}
}

// fullLengthFourSet occupies the entire length-4 code space with lowercase
// forms, so every draw collides.
func fullLengthFourSet(t *testing.T) map[string]struct{} {
	t.Helper()
	existing := make(map[string]struct{})
	for i := 0; i < len(Alphabet); i++ {
		for j := 0; j < len(Alphabet); j++ {
			for k := 0; k < len(Alphabet); k++ {
				for l := 0; l < len(Alphabet); l++ {
					existing[strings.ToLower(string([]byte{Alphabet[i], Alphabet[j], Alphabet[k], Alphabet[l]}))] = struct{}{}
				}
			}
		}
	}
	return existing
}

func TestGenerateUniqueCaseInsensitiveCollision(t *testing.T) {
	// Every draw is uppercase, so a collision proves the check is
	// case-insensitive.
	_, err := GenerateUnique(fullLengthFourSet(t), types.MinCodeLength, 5)
	if err == nil {
		t.Fatal("expected exhaustion when every lowercase variant is taken")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeCodeSpaceExhausted {
		t.Errorf("Code = %q, want %q", appErr.Code, types.ErrCodeCodeSpaceExhausted)
	}
}

func TestGenerateUniqueDefaultAttemptCap(t *testing.T) {
	_, err := GenerateUnique(fullLengthFourSet(t), types.MinCodeLength, 0)

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.Details["attempts"] != 10 {
		t.Errorf("attempts = %v, want the default cap of 10", appErr.Details["attempts"])
	}
}

func TestGenerateUniqueSucceedsWithSparseSet(t *testing.T) {
	existing := map[string]struct{}{
		"AAAAAAAA": {},
		"bbbbbbbb": {},
	}
	code, err := GenerateUnique(existing, types.DefaultCodeLength, 0)
	if err != nil {
		t.Fatalf("GenerateUnique: %v", err)
	}
	if code == "" {
		t.Fatal("empty code returned")
	}
}
