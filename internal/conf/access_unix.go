//go:build unix

package conf

import "golang.org/x/sys/unix"

// checkReadable mirrors access(path, R_OK).
func checkReadable(path string) error {
	return unix.Access(path, unix.R_OK)
}
