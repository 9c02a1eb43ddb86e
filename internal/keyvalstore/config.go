package keyvalstore

import (
	"errors"
	"os"
	"syscall"
)

func (sc *StoreConfig) checkConfig() error {
	if sc.Path == "" {
		return errors.New("no path provided in configuration")
	}

	info, err := os.Stat(sc.Path)
	if os.IsNotExist(err) {
		return errors.New("path does not exist")
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("path is not a directory")
	}

	if sc.MinimumFreeGB > 0 {
		var stat syscall.Statfs_t
		syscall.Statfs(sc.Path, &stat)

		// Available blocks * size per block gives available space in bytes
		availableSpaceInGB := (stat.Bavail * uint64(stat.Bsize)) / (1024 * 1024 * 1024)
		if int(availableSpaceInGB) < sc.MinimumFreeGB {
			return errors.New("not enough space available on disk")
		}
	}

	return nil
}
