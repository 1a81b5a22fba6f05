package preview

// PDFMediaType is the only media type the renderer accepts.
const PDFMediaType = "application/pdf"

// SourceFile is a caller-owned blob of bytes with a declared media type.
// The renderer only borrows it for the duration of one request.
type SourceFile struct {
	Name      string
	MediaType string
	Data      []byte
}

// NewSourceFile wraps data as a SourceFile
func NewSourceFile(name, mediaType string, data []byte) *SourceFile {
	return &SourceFile{
		Name:      name,
		MediaType: mediaType,
		Data:      data,
	}
}

// Size returns the byte length of the file, 0 for a nil file
func (f *SourceFile) Size() int {
	if f == nil {
		return 0
	}
	return len(f.Data)
}

// Validate checks the preconditions of a preview request in order; the first
// failure wins.
func Validate(file *SourceFile) error {
	if file == nil {
		return newError(KindMissingFile, "no file provided", nil)
	}
	if file.MediaType != PDFMediaType {
		return newError(KindUnsupportedType, "invalid file type, only PDF files are supported", nil)
	}
	if len(file.Data) == 0 {
		return newError(KindEmptyFile, "empty or invalid file", nil)
	}
	return nil
}
