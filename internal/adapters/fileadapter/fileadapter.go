// Package fileadapter performs crash-safe file edits for the env_var fault:
// back up the original before corrupting it, restore it byte-identical on
// rollback.
package fileadapter

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/chaoslab/faultplane/internal/apierrors"
)

// Read returns the full contents of path.
func Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apierrors.AdapterErrorf("read %s", path).WithDetail(err.Error())
	}
	return data, nil
}

// AtomicWrite writes data to path by writing to a temp file in the same
// directory and renaming over the target, so a crash mid-write never
// leaves a half-written file behind.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return apierrors.AdapterErrorf("create temp file for %s", path).WithDetail(err.Error())
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apierrors.AdapterErrorf("write temp file for %s", path).WithDetail(err.Error())
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apierrors.AdapterErrorf("close temp file for %s", path).WithDetail(err.Error())
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return apierrors.AdapterErrorf("chmod temp file for %s", path).WithDetail(err.Error())
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return apierrors.AdapterErrorf("rename temp file onto %s", path).WithDetail(err.Error())
	}
	return nil
}

// SiblingPath returns the backup path for path scoped to one attack id, so
// concurrent attacks against the same file never collide.
func SiblingPath(path, attackID string) string {
	return fmt.Sprintf("%s.bak-%s", path, attackID)
}

// BackupToSibling copies path to its attack-scoped sibling before the
// fault mutates it.
func BackupToSibling(path, attackID string) (string, error) {
	data, err := Read(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", apierrors.AdapterErrorf("stat %s", path).WithDetail(err.Error())
	}

	backupPath := SiblingPath(path, attackID)
	if err := AtomicWrite(backupPath, data, info.Mode()); err != nil {
		return "", err
	}
	return backupPath, nil
}

// RestoreFromSibling overwrites path with the attack-scoped backup written
// by BackupToSibling, then removes the backup.
func RestoreFromSibling(path, attackID string) error {
	backupPath := SiblingPath(path, attackID)
	data, err := Read(backupPath)
	if err != nil {
		return err
	}
	info, err := os.Stat(backupPath)
	if err != nil {
		return apierrors.AdapterErrorf("stat backup %s", backupPath).WithDetail(err.Error())
	}
	if err := AtomicWrite(path, data, info.Mode()); err != nil {
		return err
	}
	return os.Remove(backupPath)
}
