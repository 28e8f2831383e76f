package validate

// typeExtensions maps a MIME type to the extensions a file of that type is expected to carry.
var typeExtensions = map[string][]string{
	// Images
	"image/jpeg":    {".jpg", ".jpeg"},
	"image/png":     {".png"},
	"image/gif":     {".gif"},
	"image/webp":    {".webp"},
	"image/svg+xml": {".svg"},
	"image/bmp":     {".bmp"},
	"image/tiff":    {".tiff", ".tif"},

	// Documents
	"application/pdf":    {".pdf"},
	"application/msword": {".doc"},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   {".docx"},
	"application/vnd.ms-excel":                                                  {".xls"},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         {".xlsx"},
	"application/vnd.ms-powerpoint":                                             {".ppt"},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {".pptx"},
	"text/plain":      {".txt"},
	"text/csv":        {".csv"},
	"application/rtf": {".rtf"},

	// Archives
	"application/zip":              {".zip"},
	"application/x-rar-compressed": {".rar"},
	"application/x-7z-compressed":  {".7z"},
	"application/x-tar":            {".tar"},
	"application/gzip":             {".gz"},

	// Audio
	"audio/mpeg": {".mp3"},
	"audio/wav":  {".wav"},
	"audio/ogg":  {".ogg"},
	"audio/aac":  {".aac"},
	"audio/webm": {".webm"},

	// Video
	"video/mp4":       {".mp4"},
	"video/webm":      {".webm"},
	"video/ogg":       {".ogv"},
	"video/avi":       {".avi"},
	"video/quicktime": {".mov"},
	"video/x-msvideo": {".avi"},
}

// ExtensionsFor returns the known extensions for a MIME type, or nil when the type is not registered.
func ExtensionsFor(mimeType string) []string {
	exts, ok := typeExtensions[mimeType]
	if !ok {
		return nil
	}
	out := make([]string, len(exts))
	copy(out, exts)
	return out
}

func extensionMatches(mimeType, ext string) (known bool, ok bool) {
	exts, known := typeExtensions[mimeType]
	if !known {
		return false, true
	}
	for _, e := range exts {
		if e == ext {
			return true, true
		}
	}
	return true, false
}
