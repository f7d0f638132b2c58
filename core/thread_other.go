//go:build !linux

package core

// currentThreadID is not available on this platform.
func currentThreadID() int {
	return 0
}
