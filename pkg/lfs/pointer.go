package lfs

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

const (
	blobSizeCutoff = 1024

	// readBufferSize is the chunk size used when hashing content.
	readBufferSize = 4 << 20

	// HashAlgorithmSHA256 is the hash algorithm used for Git LFS.
	HashAlgorithmSHA256 = "sha256"

	// MetaFileIdentifier is the string appearing at the first line of LFS pointer files.
	// https://github.com/git-lfs/git-lfs/blob/master/docs/spec.md
	MetaFileIdentifier = "version https://git-lfs.github.com/spec/v1"

	// MetaFileOidPrefix appears in LFS pointer files on a line before the sha256 hash.
	MetaFileOidPrefix = "oid " + HashAlgorithmSHA256 + ":"
)

var (
	// ErrMissingPrefix occurs if the content lacks the LFS prefix
	ErrMissingPrefix = errors.New("content lacks the LFS prefix")

	// ErrInvalidStructure occurs if the content has an invalid structure
	ErrInvalidStructure = errors.New("content has an invalid structure")

	// ErrInvalidOIDFormat occurs if the oid has an invalid format
	ErrInvalidOIDFormat = errors.New("OID has an invalid format")
)

// ReadPointer reads a pointer file from r. Only the first kilobyte is
// looked at.
func ReadPointer(r io.Reader) (Pointer, error) {
	buf := make([]byte, blobSizeCutoff)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return Pointer{}, err
	}

	return ParsePointer(buf[:n])
}

var oidPattern = regexp.MustCompile(`^[a-f\d]{64}$`)

// ParsePointer parses the content of a pointer file: the version line, then
// the oid line, then the size line.
func ParsePointer(buf []byte) (Pointer, error) {
	content := strings.ReplaceAll(string(buf), "\r\n", "\n")
	if !strings.HasPrefix(content, MetaFileIdentifier) {
		return Pointer{}, ErrMissingPrefix
	}

	lines := strings.Split(content, "\n")
	if len(lines) < 3 {
		return Pointer{}, ErrInvalidStructure
	}

	oid, ok := strings.CutPrefix(lines[1], MetaFileOidPrefix)
	if !ok || !oidPattern.MatchString(oid) {
		return Pointer{}, ErrInvalidOIDFormat
	}

	rawSize, ok := strings.CutPrefix(lines[2], "size ")
	if !ok {
		return Pointer{}, ErrInvalidStructure
	}
	size, err := strconv.ParseInt(rawSize, 10, 64)
	if err != nil || size < 0 {
		return Pointer{}, fmt.Errorf("%w: size %q", ErrInvalidStructure, rawSize)
	}

	return Pointer{Oid: oid, Size: size}, nil
}

// IsValid reports whether the pointer is well formed. It says nothing about
// whether the object exists.
func (p Pointer) IsValid() bool {
	return oidPattern.MatchString(p.Oid) && p.Size >= 0
}

// String returns the string representation of the pointer
// https://github.com/git-lfs/git-lfs/blob/main/docs/spec.md#the-pointer
func (p Pointer) String() string {
	return fmt.Sprintf("%s\n%s%s\nsize %d\n", MetaFileIdentifier, MetaFileOidPrefix, p.Oid, p.Size)
}

// GetObjectAttributes hashes the content of r with SHA-256 and returns its
// oid and size. r is read from its start and is always left positioned
// there, even on failure.
func GetObjectAttributes(r io.ReadSeeker) (attrs ObjectAttributes, err error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return ObjectAttributes{}, err
	}
	defer func() {
		if _, serr := r.Seek(0, io.SeekStart); serr != nil && err == nil {
			err = serr
		}
	}()

	h := sha256.New()
	n, err := io.CopyBuffer(h, r, make([]byte, readBufferSize))
	if err != nil {
		return ObjectAttributes{}, err
	}

	return ObjectAttributes{Pointer: Pointer{Oid: hex.EncodeToString(h.Sum(nil)), Size: n}}, nil
}
