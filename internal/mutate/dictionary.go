package mutate

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
)

// Dictionary is a flat list of byte-string tokens loaded from a text file,
// per spec.md §4.6. It may be empty.
type Dictionary struct {
	tokens [][]byte
}

// LoadDictionary reads the dictionary file at path. Lines starting with '#'
// are comments, blank lines are skipped, and on any other line the bytes
// between the first and second double-quote are taken as a token. A blank
// path returns an empty dictionary, not an error.
func LoadDictionary(path string) (*Dictionary, error) {
	if path == "" {
		return &Dictionary{}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dictionary %s: %w", path, err)
	}
	defer f.Close()

	var tokens [][]byte
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 || line[0] == '#' {
			continue
		}
		parts := bytes.SplitN(line, []byte{'"'}, 3)
		if len(parts) < 3 {
			continue
		}
		token := make([]byte, len(parts[1]))
		copy(token, parts[1])
		tokens = append(tokens, token)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dictionary %s: %w", path, err)
	}

	return &Dictionary{tokens: tokens}, nil
}

// Empty reports whether the dictionary has no tokens.
func (d *Dictionary) Empty() bool {
	return d == nil || len(d.tokens) == 0
}

// Token returns the i-th token for a caller that has already chosen an
// index (Len gives the token count), so callers can draw their own random
// index using a shared RNG rather than this package owning randomness
// sources twice over.
func (d *Dictionary) Token(i int) []byte {
	return d.tokens[i]
}

// Len returns the number of tokens.
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.tokens)
}
