package replicator

import (
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/tinoosan/dubsync/internal/fp"
)

// copyFile replicates src to dst through a temp file in dst's directory that
// is renamed into place, so dst is either the old file or the complete new
// one. An existing dst is replaced. Permission bits and modification time are
// carried over. It returns the digest and length of the bytes written.
func copyFile(src, dst string) (string, int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", 0, err
	}
	defer in.Close()
	st, err := in.Stat()
	if err != nil {
		return "", 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return "", 0, err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	h := fp.NewHash()
	n, err := io.Copy(io.MultiWriter(tmp, h), in)
	if err != nil {
		_ = tmp.Close()
		return "", n, err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", n, err
	}
	if err := tmp.Chmod(st.Mode().Perm()); err != nil {
		_ = tmp.Close()
		return "", n, err
	}
	if err := tmp.Close(); err != nil {
		return "", n, err
	}
	if err := os.Chtimes(tmpName, st.ModTime(), st.ModTime()); err != nil {
		return "", n, err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return "", n, err
	}
	committed = true
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
