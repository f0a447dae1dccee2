package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	errOutsideFileRoot = errors.New("path is outside the server file root")
	errPathRequired    = errors.New("path is required")
)

// resolvePath turns a client supplied path into the path the server will
// open. With an empty root the path is only cleaned. Otherwise relative paths
// are taken from root, and any result that leaves root is rejected.
func resolvePath(root, p string) (string, error) {
	if p == "" {
		return "", errPathRequired
	}
	if root == "" {
		return filepath.Clean(p), nil
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("could not resolve file root: %w", err)
	}
	target := p
	if !filepath.IsAbs(target) {
		target = filepath.Join(absRoot, target)
	}
	target = filepath.Clean(target)

	rel, err := filepath.Rel(absRoot, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", errOutsideFileRoot, p)
	}
	return target, nil
}
