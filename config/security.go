package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Limits applied to anything read from disk or the environment
const (
	maxConfigSize = 1 << 20 // a controller config is a few KB
	maxJSONDepth  = 32
	maxEnvVarLen  = 4096
	maxPathLen    = 4096
)

// validateConfigPath rejects paths that climb out of the working directory
// and files that are neither JSON nor YAML
func validateConfigPath(path string) error {
	switch {
	case path == "":
		return errors.New("no config path given")
	case len(path) > maxPathLen:
		return fmt.Errorf("config path is %d bytes, limit %d", len(path), maxPathLen)
	}

	if ext := strings.ToLower(filepath.Ext(path)); ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("%s: config must be .json, .yaml or .yml", path)
	}
	if filepath.IsAbs(path) {
		return nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("working directory: %w", err)
	}
	rel, err := filepath.Rel(cwd, filepath.Join(cwd, path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%s escapes the working directory", path)
	}
	return nil
}

// safeReadFile reads a validated, regular, reasonably sized config file
func safeReadFile(path string) ([]byte, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, err
	}

	fi, err := os.Stat(path)
	switch {
	case err != nil:
		return nil, err
	case !fi.Mode().IsRegular():
		return nil, fmt.Errorf("%s is not a regular file", path)
	case fi.Size() > maxConfigSize:
		return nil, fmt.Errorf("%s is %d bytes, limit %d", path, fi.Size(), maxConfigSize)
	}
	return os.ReadFile(path)
}

// safeWriteFile replaces path atomically, readable by the owner only
func safeWriteFile(path string, data []byte) error {
	if err := validateConfigPath(path); err != nil {
		return err
	}
	if len(data) > maxConfigSize {
		return fmt.Errorf("encoded config is %d bytes, limit %d", len(data), maxConfigSize)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func validateEnvVar(key, value string) error {
	switch {
	case len(value) > maxEnvVarLen:
		return fmt.Errorf("$%s is %d bytes, limit %d", key, len(value), maxEnvVarLen)
	case strings.IndexByte(value, 0) >= 0:
		return fmt.Errorf("$%s contains a NUL byte", key)
	}
	return nil
}

// validateJSONDepth rejects JSON nested deeper than maxJSONDepth before it
// reaches the decoder. Brackets inside strings are ignored.
func validateJSONDepth(data []byte) error {
	var (
		stack    []byte
		inString bool
		escaped  bool
	)
	for _, b := range data {
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, b)
			if len(stack) > maxJSONDepth {
				return fmt.Errorf("JSON nesting too deep: more than %d levels", maxJSONDepth)
			}
		case '}', ']':
			open := byte('{')
			if b == ']' {
				open = '['
			}
			if len(stack) == 0 || stack[len(stack)-1] != open {
				return fmt.Errorf("malformed JSON: unexpected %q", b)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) != 0 {
		return fmt.Errorf("malformed JSON: %d unclosed brackets", len(stack))
	}
	return nil
}
