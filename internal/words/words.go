// Package words provides the shared text every player in a game types.
package words

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
)

type Generator struct {
	words []string
}

// Load reads the newline-separated word file.
func Load(path string) (*Generator, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load word file: %w", err)
	}

	var words []string
	for _, w := range strings.Split(string(raw), "\n") {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("word file %s is empty", path)
	}
	return &Generator{words: words}, nil
}

// Generate returns n random words joined by single spaces.
func (g *Generator) Generate(n int) string {
	picked := make([]string, n)
	perm := rand.Perm(len(g.words))
	for i := 0; i < n; i++ {
		picked[i] = g.words[perm[i%len(perm)]]
	}
	return strings.Join(picked, " ")
}
