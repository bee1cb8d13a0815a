package storage

import (
	"os"
	"path/filepath"
)

// DatabaseSizeBytes returns the on-disk size of a SQLite database including its WAL sidecar files.
func DatabaseSizeBytes(dbPath string) (int64, error) {
	return DiskUsageBytes(dbPath, dbPath+"-wal", dbPath+"-shm")
}

// DiskUsageBytes sums the sizes of the given files and directories.
// Missing and empty paths count as 0.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if !info.IsDir() {
			total += info.Size()
			continue
		}
		err = filepath.WalkDir(p, func(_ string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			total += fi.Size()
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}
