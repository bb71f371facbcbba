package s3store

import (
	"errors"
	"strings"
)

// IsS3URI reports whether dest names an S3 object.
func IsS3URI(dest string) bool {
	return strings.HasPrefix(dest, "s3://")
}

// ParseS3URI parses an S3 URI into bucket and key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	if !IsS3URI(uri) {
		return "", "", errors.New("invalid S3 URI: must start with s3://")
	}

	path := strings.TrimPrefix(uri, "s3://")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) < 1 || parts[0] == "" {
		return "", "", errors.New("invalid S3 URI: missing bucket name")
	}

	bucket = parts[0]
	if len(parts) == 2 {
		key = parts[1]
	}

	return bucket, key, nil
}

// ParseObjectURI is ParseS3URI for upload targets, which need a key that
// does not end in a slash.
func ParseObjectURI(uri string) (bucket, key string, err error) {
	bucket, key, err = ParseS3URI(uri)
	if err != nil {
		return "", "", err
	}
	if key == "" || strings.HasSuffix(key, "/") {
		return "", "", errors.New("invalid S3 URI: missing object key")
	}
	return bucket, key, nil
}
