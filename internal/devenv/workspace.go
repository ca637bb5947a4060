package devenv

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const workspacePrefix = "<workspace>"

var modName = regexp.MustCompile(`(?m)^module *([\w\-_/.]+)$`)

var ErrWorkDir = fmt.Errorf("expected exactly one deployment work directory")

func isWorkspaceRoot(currentdir string) bool {
	mod, err := os.ReadFile(filepath.Join(currentdir, "go.mod"))
	if err != nil {
		return false
	}
	matches := modName.FindSubmatch(mod)
	return len(matches) >= 2 && string(matches[1]) == "fixture-crawler"
}

// GetWorkspaceRoot walks up from the cwd to the directory holding the go.mod
// of this module.
func GetWorkspaceRoot() (string, error) {
	currentdir, err := filepath.Abs(".")
	if err != nil {
		return "", err
	}
	root, err := filepath.Abs("/")
	if err != nil {
		return "", err
	}

	for currentdir != root {
		if !isWorkspaceRoot(currentdir) {
			currentdir = filepath.Join(currentdir, "..")
			continue
		}
		return currentdir, nil
	}

	return "", os.ErrNotExist
}

// ResolvePath expands a leading <workspace> into the workspace root, other
// paths are returned as is.
func ResolvePath(path string) (string, error) {
	if !strings.HasPrefix(path, workspacePrefix) {
		return path, nil
	}
	root, err := GetWorkspaceRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, strings.TrimPrefix(path, workspacePrefix)), nil
}

// FindWorkDir returns the single directory under deploymentsRoot, the
// deployment being crawled. Zero or several candidates are an error.
func FindWorkDir(deploymentsRoot string) (string, error) {
	entries, err := os.ReadDir(deploymentsRoot)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrWorkDir, err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			dirs = append(dirs, e.Name())
		}
	}
	if len(dirs) != 1 {
		return "", fmt.Errorf("%w: found %d under %s %v", ErrWorkDir, len(dirs), deploymentsRoot, dirs)
	}
	return filepath.Join(deploymentsRoot, dirs[0]), nil
}
