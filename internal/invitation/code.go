package invitation

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	codeAlphabet      = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	DefaultCodeLength = 8
	// MinCodeLength keeps 36^n above 2.8e12.
	MinCodeLength = 8

	maxCodeAttempts = 1000
)

var ErrCodeSpaceExhausted = errors.New("could not find an unused invitation code")

// CodeExistsFunc reports whether code is already taken.
type CodeExistsFunc func(ctx context.Context, code string) (bool, error)

// Generator draws codes uniformly from 0-9A-Z and retries until it finds one
// that is not in use.
type Generator struct {
	length int
	exists CodeExistsFunc
}

func NewGenerator(length int, exists CodeExistsFunc) *Generator {
	if length < MinCodeLength {
		length = DefaultCodeLength
	}
	return &Generator{length: length, exists: exists}
}

func (g *Generator) Generate(ctx context.Context) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := randomCode(g.length)
		if err != nil {
			return "", err
		}

		used, err := g.exists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check invitation code: %w", err)
		}
		if !used {
			return code, nil
		}
		logger.Debug().Msg("Invitation code collision, drawing again")
	}
	return "", ErrCodeSpaceExhausted
}

// randomCode uses rejection sampling so every symbol is equally likely.
func randomCode(length int) (string, error) {
	const limit = 256 - 256%len(codeAlphabet)

	code := make([]byte, 0, length)
	buf := make([]byte, length*2)
	for len(code) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			code = append(code, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(code) == length {
				break
			}
		}
	}
	return string(code), nil
}
