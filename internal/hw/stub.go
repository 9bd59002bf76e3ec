//go:build !linux

package hw

import "errors"

// The real backends require Linux GPIO interfaces. On other platforms
// only the mock backend is available.

func newMemMapReader() (Reader, error) {
	return nil, errors.New("gpio memory-map backend requires Linux")
}

func newChardevReader() (Reader, error) {
	return nil, errors.New("gpio character-device backend requires Linux")
}
