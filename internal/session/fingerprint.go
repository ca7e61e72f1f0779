package session

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
)

// sampleSize is the byte count hashed from the head, middle and tail.
const sampleSize = 4096

// Fingerprint is a cheap FNV-1a hash over the base file name, the size and
// three content samples. It detects a different source, not tampering.
func Fingerprint(name string, data []byte) string {
	h := fnv.New64a()
	h.Write([]byte(filepath.Base(name)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(len(data))))
	h.Write([]byte{0})

	if len(data) <= 3*sampleSize {
		h.Write(data)
	} else {
		mid := len(data)/2 - sampleSize/2
		h.Write(data[:sampleSize])
		h.Write(data[mid : mid+sampleSize])
		h.Write(data[len(data)-sampleSize:])
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

func FingerprintFile(filename string) (string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", filename, err)
	}
	return Fingerprint(filename, data), nil
}
