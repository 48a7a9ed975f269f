package model

// SourceFile is the immutable input to a single instrumentation run. The
// core only ever holds a read-only borrow of it; ownership stays with the
// caller for the lifetime of the call.
type SourceFile struct {
	Language Language
	Bytes    []byte
	Path     string
}

// NewSourceFile constructs a SourceFile, copying bytes defensively so later
// caller-side mutation of the input slice cannot change analysis results
// already derived from it.
func NewSourceFile(language Language, bytes []byte, path string) SourceFile {
	cp := make([]byte, len(bytes))
	copy(cp, bytes)
	return SourceFile{Language: language, Bytes: cp, Path: path}
}
