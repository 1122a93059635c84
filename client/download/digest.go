package download

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"slices"
	"strings"
)

var algorithms = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha384": sha512.New384,
	"sha512": sha512.New,
}

// digest hashes the bytes written to it and compares the sum at the end.
type digest struct {
	name string
	hash hash.Hash
	want []byte
}

func newDigest(name string, h hash.Hash, wantHex string) (*digest, error) {
	want, err := hex.DecodeString(strings.TrimSpace(wantHex))
	if err != nil {
		return nil, fmt.Errorf("expected checksum is not hex: %w", err)
	}
	if len(want) == 0 {
		return nil, fmt.Errorf("expected checksum must not be empty")
	}

	return &digest{name: name, hash: h, want: want}, nil
}

// parseDigest reads "algorithm:hex", e.g. "sha256:9f86d0...".
func parseDigest(spec string) (*digest, error) {
	algo, sum, ok := strings.Cut(spec, ":")
	if !ok {
		return nil, fmt.Errorf("digest %q must be algorithm:hex", spec)
	}

	algo = strings.ToLower(algo)
	newHash, ok := algorithms[algo]
	if !ok {
		return nil, fmt.Errorf("unsupported digest algorithm %q", algo)
	}

	return newDigest(algo, newHash(), sum)
}

func (d *digest) Write(p []byte) (int, error) {
	return d.hash.Write(p)
}

func (d *digest) verify(path string) error {
	got := d.hash.Sum(nil)
	if bytes.Equal(got, d.want) {
		return nil
	}

	return &Error{
		Path:   path,
		Err:    ErrChecksumMismatch,
		Detail: fmt.Sprintf("%s expected %x, got %x", d.name, d.want, got),
	}
}

// Algorithms lists the names accepted by [WithDigest].
func Algorithms() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	slices.Sort(names)

	return names
}
