//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package replicator

// changeStamp is unavailable here; the digest cache falls back to path,
// size and mtime.
func changeStamp(string) string { return "" }
