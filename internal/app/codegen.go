package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
)

// CodeIndex answers whether a short code is already taken. The code namespace
// is global across all redemptions.
type CodeIndex interface {
	CodeExists(ctx context.Context, code string) (bool, error)
}

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	// DefaultCodeLength is short enough to type at a counter.
	DefaultCodeLength   = 6
	maxAttemptsAtLength = 5
	fallbackLengthStep  = 2
)

// CodeGenerator mints human-typeable uppercase alphanumeric codes, retrying
// on collision and falling back to a longer code when the base length keeps
// colliding.
type CodeGenerator struct {
	index CodeIndex
}

func NewCodeGenerator(index CodeIndex) *CodeGenerator {
	return &CodeGenerator{index: index}
}

func (g *CodeGenerator) Generate(ctx context.Context, length int) (string, error) {
	if length <= 0 {
		length = DefaultCodeLength
	}

	for _, l := range []int{length, length + fallbackLengthStep} {
		for attempt := 0; attempt < maxAttemptsAtLength; attempt++ {
			code, err := randomCode(l)
			if err != nil {
				return "", err
			}
			taken, err := g.index.CodeExists(ctx, code)
			if err != nil {
				return "", err
			}
			if !taken {
				return code, nil
			}
		}
	}
	return "", fmt.Errorf("generate code: exhausted attempts at lengths %d and %d", length, length+fallbackLengthStep)
}

func randomCode(length int) (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("random code: %w", err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
