//go:build !unix

package mem

import "errors"

var errNoMmap = errors.New("mem: anonymous mappings are not supported on this platform")

func mapAnon(int) ([]byte, error) {
	return nil, errNoMmap
}

func unmap([]byte) error {
	return errNoMmap
}
