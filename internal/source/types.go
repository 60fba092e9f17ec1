package source

// FileID indexes a File inside its FileSet.
type FileID uint32

// FileFlags record how a file entered the set.
type FileFlags uint8

const (
	// FileVirtual marks content added from memory (stdin, tests, plugins).
	FileVirtual FileFlags = 1 << iota
	// FileHadBOM marks a loaded file whose UTF-8 BOM was stripped.
	FileHadBOM
	// FileCRLF marks content using \r\n line endings; they are kept as is.
	FileCRLF
)

// File is one immutable source snapshot. Spans into it are byte offsets.
type File struct {
	ID      FileID
	Path    string // slash separated, cleaned
	Content []byte
	LineIdx []uint32 // offsets of every '\n'
	Hash    [32]byte
	Flags   FileFlags
}

// LineCol is a 1-based line and 1-based character column.
type LineCol struct {
	Line uint32
	Col  uint32
}
