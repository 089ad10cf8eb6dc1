package content

import (
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"io"
)

// Checksum computes the content fingerprint used by manifests: the MD5 digest,
// base64 encoded with the trailing padding removed.
func Checksum(r io.Reader) (string, error) {
	hasher := md5.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return "", fmt.Errorf("failed to read content for checksum: %w", err)
	}
	return base64.RawStdEncoding.EncodeToString(hasher.Sum(nil)), nil
}

// ChecksumBytes computes the fingerprint of an in-memory buffer
func ChecksumBytes(data []byte) string {
	sum := md5.Sum(data)
	return base64.RawStdEncoding.EncodeToString(sum[:])
}
