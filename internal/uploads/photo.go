package uploads

import (
	"mime"
	"strings"
)

// Photo is the accepted fridge image held by a flow.
type Photo struct {
	StorageKey string `json:"storageKey"`
	FileName   string `json:"fileName"`
	MimeType   string `json:"mimeType"`
	SizeBytes  int64  `json:"sizeBytes"`
	PreviewURL string `json:"previewUrl"`
}

// IsImage accepts declared image/* types. When the client declared nothing
// useful, the sniffed type decides.
func IsImage(declared, sniffed string) bool {
	declared = baseType(declared)
	switch declared {
	case "", "application/octet-stream":
		return strings.HasPrefix(baseType(sniffed), "image/")
	default:
		return strings.HasPrefix(declared, "image/")
	}
}

// PreviewURL is the locally served preview reference for a flow's photo.
func PreviewURL(flowID string) string {
	return "/api/v1/flows/" + flowID + "/image"
}

func baseType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		return strings.ToLower(mediaType)
	}
	return strings.ToLower(contentType)
}
