// SPDX-License-Identifier: ice License 1.0

//go:build test

package cfg

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/ice-blockchain/filemeta/logger"
)

func init() {
	mustInit(applicationConfigFiles()...)
}

// applicationConfigFiles lists every application.yaml from the working directory up to the module root.
func applicationConfigFiles() []string {
	var dirs []string
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	//nolint:dogsled // Only the file is needed.
	_, callerFile, _, _ := runtime.Caller(0)
	moduleRoot := filepath.Join(filepath.Dir(callerFile), "..")
	for dir := filepath.Dir(callerFile); ; dir = filepath.Dir(dir) {
		dirs = append(dirs, dir)
		if dir == moduleRoot || dir == filepath.Dir(dir) {
			break
		}
	}
	var files []string
	for _, dir := range dirs {
		for _, pattern := range []string{filepath.Join(dir, ".testdata", "application.yaml"), filepath.Join(dir, "application.yaml")} {
			matches, err := filepath.Glob(pattern)
			if err != nil {
				log.Emit(logger.WARNING, "Glob failed for [%v]: %v", pattern, err)

				continue
			}
			files = append(files, matches...)
		}
	}

	return files
}
