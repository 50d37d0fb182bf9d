package story

import "errors"

var (
	errInvalidLimit     = errors.New("limit must be a positive integer")
	errInvalidStoryPath = errors.New("path must be /stories/{category}/{id}")
)
