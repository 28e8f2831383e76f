package validate

// DocxMimeType is the declared type of Word 2007+ documents.
const DocxMimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// DefaultAllowedTypes are the patterns accepted for order attachments.
var DefaultAllowedTypes = []string{
	"image/*",
	"application/pdf",
	"application/msword",
	DocxMimeType,
	"text/plain",
	"text/csv",
}

// Policy holds the size, type and count constraints applied to submitted files.
type Policy struct {
	// MaxSizeBytes is the largest accepted file. Zero disables the check.
	MaxSizeBytes int64

	// AllowedTypes holds exact MIME types, "category/*" wildcards or ".ext" suffixes.
	// An empty list accepts every type.
	AllowedTypes []string

	// MaxFileCount caps the number of files in one batch. Zero disables the check.
	MaxFileCount int

	RequireExtensionConsistency bool

	// InspectDocuments parses PDF content and warns when it cannot be read.
	InspectDocuments bool
}

// DefaultPolicy returns the 10 MB / 10 file policy used for order attachments.
func DefaultPolicy() Policy {
	allowed := make([]string, len(DefaultAllowedTypes))
	copy(allowed, DefaultAllowedTypes)
	return Policy{
		MaxSizeBytes:                10 * 1024 * 1024,
		AllowedTypes:                allowed,
		MaxFileCount:                10,
		RequireExtensionConsistency: true,
	}
}
