package wire

import (
	"fmt"
	"mime"
	"strings"

	"github.com/google/uuid"
)

// BoundaryPrefix starts every generated boundary
const BoundaryPrefix = "batch_"

// NewBoundary draws a fresh random boundary token
func NewBoundary() string {
	return BoundaryPrefix + uuid.New().String()
}

// ContentType renders the outer content type for a batch body
func ContentType(boundary string) string {
	return mime.FormatMediaType("multipart/mixed", map[string]string{"boundary": boundary})
}

// BoundaryFromContentType extracts the boundary parameter of a multipart content type
func BoundaryFromContentType(contentType string) (string, error) {
	if strings.TrimSpace(contentType) == "" {
		return "", &ParseError{Part: -1, Reason: "response has no content type"}
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", &ParseError{Part: -1, Reason: fmt.Sprintf("invalid content type %q", contentType), Cause: err}
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return "", &ParseError{Part: -1, Reason: fmt.Sprintf("content type %q is not multipart", mediaType)}
	}
	boundary := params["boundary"]
	if boundary == "" {
		return "", &ParseError{Part: -1, Reason: "content type has no boundary parameter"}
	}
	return boundary, nil
}
