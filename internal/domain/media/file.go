package media

import (
	"crypto/md5" //nolint:gosec // path sharding only
	"encoding/hex"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Scheme is the storage area a file lives in.
type Scheme string

const (
	// SchemePublic files are served directly.
	SchemePublic Scheme = "public"
	// SchemePrivate files are only reachable through signed links.
	SchemePrivate Scheme = "private"
)

// MimeUndefined marks a file whose type is derived after the first write.
const MimeUndefined = "undefined"

// MaxFilenameLength bounds stored file names.
const MaxFilenameLength = 255

// SchemeFor maps a private flag to a scheme.
func SchemeFor(private bool) Scheme {
	if private {
		return SchemePrivate
	}
	return SchemePublic
}

// URI joins scheme and relative path: public://ab/cd/name.pdf.
func URI(s Scheme, rel string) string {
	return string(s) + "://" + rel
}

// ParseURI splits a storage uri into scheme and relative path.
func ParseURI(uri string) (Scheme, string, error) {
	scheme, rel, ok := strings.Cut(uri, "://")
	if !ok {
		return "", "", fmt.Errorf("malformed storage uri %q", uri)
	}
	s := Scheme(scheme)
	if s != SchemePublic && s != SchemePrivate {
		return "", "", fmt.Errorf("unknown storage scheme %q", scheme)
	}
	if rel == "" || strings.Contains(rel, "..") {
		return "", "", fmt.Errorf("invalid storage path %q", rel)
	}
	return s, rel, nil
}

// ShardedPath buckets filename into two directory levels taken from
// the md5 of the name: 3f/a2/report.pdf.
func ShardedPath(filename string) string {
	sum := md5.Sum([]byte(filename)) //nolint:gosec // see import
	h := hex.EncodeToString(sum[:])
	return path.Join(h[0:2], h[2:4], filename)
}

func validateFilename(name string) error {
	if name == "" {
		return fmt.Errorf("filename is required")
	}
	if len(name) > MaxFilenameLength {
		return fmt.Errorf("filename too long (max %d)", MaxFilenameLength)
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("filename %q must not contain path separators", name)
	}
	return nil
}

// File is a binary content descriptor. Its identity internally is the
// pair (stable uri, generation): every content revision at the same
// public address gets the next generation.
type File struct {
	uuid       string
	filename   string
	mime       string
	size       int64
	uri        string
	stableURI  string
	generation int
	owner      string
	temporary  bool
	hash       string
	created    int64
}

// FileState carries a File for storage hydration.
type FileState struct {
	UUID       string `json:"uuid"`
	Filename   string `json:"filename"`
	Mime       string `json:"mime"`
	Size       int64  `json:"size"`
	URI        string `json:"uri"`
	StableURI  string `json:"stable_uri"`
	Generation int    `json:"generation"`
	Owner      string `json:"owner"`
	Temporary  bool   `json:"temporary"`
	Hash       string `json:"hash,omitempty"`
	Created    int64  `json:"created"`
}

// NewFile creates a temporary descriptor without content.
func NewFile(filename, mime string, private bool, owner string, now int64) (File, error) {
	if err := validateFilename(filename); err != nil {
		return File{}, err
	}
	if owner == "" {
		return File{}, fmt.Errorf("owner provider is required")
	}
	if mime == "" {
		mime = MimeUndefined
	}
	uri := URI(SchemeFor(private), ShardedPath(filename))
	return File{
		uuid:       uuid.NewString(),
		filename:   filename,
		mime:       mime,
		uri:        uri,
		stableURI:  uri,
		generation: 1,
		owner:      owner,
		temporary:  true,
		created:    now,
	}, nil
}

// ReconstructFile creates a File without validation.
func ReconstructFile(s FileState) File {
	return File{
		uuid:       s.UUID,
		filename:   s.Filename,
		mime:       s.Mime,
		size:       s.Size,
		uri:        s.URI,
		stableURI:  s.StableURI,
		generation: s.Generation,
		owner:      s.Owner,
		temporary:  s.Temporary,
		hash:       s.Hash,
		created:    s.Created,
	}
}

// State returns the storage form.
func (f *File) State() FileState {
	return FileState{
		UUID:       f.uuid,
		Filename:   f.filename,
		Mime:       f.mime,
		Size:       f.size,
		URI:        f.uri,
		StableURI:  f.stableURI,
		Generation: f.generation,
		Owner:      f.owner,
		Temporary:  f.temporary,
		Hash:       f.hash,
		Created:    f.created,
	}
}

// UUID returns the file uuid.
func (f *File) UUID() string { return f.uuid }

// Filename returns the stored file name.
func (f *File) Filename() string { return f.filename }

// Mime returns the content type.
func (f *File) Mime() string { return f.mime }

// Size returns the content length in bytes.
func (f *File) Size() int64 { return f.size }

// URI returns where the bytes of this descriptor live.
func (f *File) URI() string { return f.uri }

// StableURI returns the address external links resolve to.
func (f *File) StableURI() string { return f.stableURI }

// Generation returns the content generation at the stable uri.
func (f *File) Generation() int { return f.generation }

// Owner returns the provider uuid that created the file.
func (f *File) Owner() string { return f.owner }

// Temporary reports whether content was never written.
func (f *File) Temporary() bool { return f.temporary }

// Hash returns the sha256 of the content.
func (f *File) Hash() string { return f.hash }

// Created returns the creation timestamp (unix seconds).
func (f *File) Created() int64 { return f.created }

// Scheme returns the storage area of the current uri.
func (f *File) Scheme() Scheme {
	s, _, err := ParseURI(f.uri)
	if err != nil {
		return SchemePublic
	}
	return s
}

// IsPrivate reports whether the file lives in private storage.
func (f *File) IsPrivate() bool { return f.Scheme() == SchemePrivate }

// OwnedBy reports whether provider created the file.
func (f *File) OwnedBy(provider string) bool {
	return provider != "" && f.owner == provider
}

// RecordContent marks the descriptor permanent with the written content.
// A fresh uri also becomes the stable uri of a temporary file.
func (f *File) RecordContent(uri string, size int64, hash string) {
	if f.temporary {
		f.stableURI = uri
	}
	f.uri = uri
	f.size = size
	f.hash = hash
	f.temporary = false
}

// SetMime overrides the content type.
func (f *File) SetMime(mime string) { f.mime = mime }

// Rotate points the descriptor at the path its old bytes were copied to.
// The stable uri is kept so history can be traced to its address.
func (f *File) Rotate(uri string) { f.uri = uri }

// Relocate moves both the current and stable uri, e.g. to another scheme.
func (f *File) Relocate(uri, stableURI string) {
	f.uri = uri
	f.stableURI = stableURI
}

// NextGeneration returns a new descriptor for the next content at the
// same stable uri.
func (f *File) NextGeneration(now int64) File {
	return File{
		uuid:       uuid.NewString(),
		filename:   f.filename,
		mime:       f.mime,
		uri:        f.stableURI,
		stableURI:  f.stableURI,
		generation: f.generation + 1,
		owner:      f.owner,
		created:    now,
	}
}
