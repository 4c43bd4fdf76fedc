// Package storage keeps uploaded image bytes on local disk or in an S3 bucket
// and serves them back over HTTP. Keys are slash separated relative paths.
package storage

import (
	"errors"
	"path"
	"strings"
)

var ErrInvalidKey = errors.New("invalid storage key")

// imageTypes are the extensions served inline. Anything else is served as an
// attachment so uploaded markup never renders on the API origin.
var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// ImageContentType returns the media type for an image extension such as ".png".
func ImageContentType(ext string) (string, bool) {
	ct, ok := imageTypes[strings.ToLower(ext)]
	return ct, ok
}

// cleanKey normalizes key into a relative slash path that cannot climb above
// the storage root and has no hidden segments.
func cleanKey(key string) (string, error) {
	cleaned := strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(key, "\\", "/")), "/")
	if cleaned == "" {
		return "", ErrInvalidKey
	}
	for _, seg := range strings.Split(cleaned, "/") {
		if strings.HasPrefix(seg, ".") {
			return "", ErrInvalidKey
		}
	}
	return cleaned, nil
}
