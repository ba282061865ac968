// Package security confines report access to operator-approved directories.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultExtensions lists the report formats the server reads.
var DefaultExtensions = []string{".csv", ".xlsx", ".xlsm", ".xltx", ".xltm"}

// Manager enforces filesystem allow-list and path validation guardrails.
// Roots are stored canonicalized; requested paths must resolve inside one of
// them, carry a supported extension and stay under the size limit.
type Manager struct {
	allowedDirs  []string
	allowedExts  map[string]struct{}
	maxFileBytes int64
}

var (
	// ErrNotAllowed indicates the requested path is outside the allow-list roots.
	ErrNotAllowed = errors.New("security: path not allowed")
	// ErrUnsupportedExtension indicates the requested file extension is not supported.
	ErrUnsupportedExtension = errors.New("security: unsupported file extension")
	// ErrNotFound indicates the requested file does not exist or is not accessible.
	ErrNotFound = errors.New("security: file not found")
	// ErrTooLarge indicates the file exceeds the configured size limit.
	ErrTooLarge = errors.New("security: file too large")
)

// NewManager constructs a security manager given an allow-list of directories
// and a list of allowed file extensions (case-insensitive, with leading dot).
// Nil extensions select DefaultExtensions.
func NewManager(allowDirs []string, allowedExtensions []string) (*Manager, error) {
	if len(allowedExtensions) == 0 {
		allowedExtensions = DefaultExtensions
	}
	exts := make(map[string]struct{}, len(allowedExtensions))
	for _, e := range allowedExtensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || !strings.HasPrefix(e, ".") {
			return nil, fmt.Errorf("security: invalid extension: %q", e)
		}
		exts[e] = struct{}{}
	}

	canonical := make([]string, 0, len(allowDirs))
	for _, d := range allowDirs {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		root, err := resolve(d)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("security: stat %q: %w", root, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("security: allow-list entry is not a directory: %q", root)
		}
		canonical = append(canonical, root)
	}
	return &Manager{allowedDirs: canonical, allowedExts: exts}, nil
}

// WithMaxFileBytes sets the largest file ValidateOpenPath accepts. Zero
// disables the check.
func (m *Manager) WithMaxFileBytes(n int64) *Manager {
	m.maxFileBytes = n
	return m
}

// resolve makes p absolute and follows symlinks so a linked root cannot be
// used to escape later.
func resolve(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("security: resolve abs for %q: %w", p, err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("security: eval symlinks for %q: %w", abs, err)
	}
	return filepath.Clean(real), nil
}

// AllowedDirectories returns the canonical allow-list roots.
func (m *Manager) AllowedDirectories() []string {
	out := make([]string, len(m.allowedDirs))
	copy(out, m.allowedDirs)
	return out
}

// ValidateConfig returns an error when no allow-list entries are configured,
// so file tools stay disabled until an operator names directories.
func (m *Manager) ValidateConfig() error {
	if len(m.allowedDirs) == 0 {
		return errors.New("security: no allowed directories configured")
	}
	return nil
}

// ValidateOpenPath ensures the input path refers to an existing file with an
// allowed extension inside one of the allow-list directories. It returns the
// canonical absolute path and the file size.
func (m *Manager) ValidateOpenPath(input string) (string, int64, error) {
	if strings.TrimSpace(input) == "" {
		return "", 0, ErrNotAllowed
	}
	ext := strings.ToLower(filepath.Ext(input))
	if _, ok := m.allowedExts[ext]; !ok {
		return "", 0, fmt.Errorf("%w: %q", ErrUnsupportedExtension, ext)
	}

	abs, err := filepath.Abs(input)
	if err != nil {
		return "", 0, fmt.Errorf("security: abs path: %w", err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", 0, ErrNotFound
		}
		return "", 0, fmt.Errorf("security: eval symlinks: %w", err)
	}
	info, err := os.Stat(real)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", 0, ErrNotFound
		}
		return "", 0, fmt.Errorf("security: stat: %w", err)
	}
	if info.IsDir() || !m.contains(real) {
		return "", 0, ErrNotAllowed
	}
	if m.maxFileBytes > 0 && info.Size() > m.maxFileBytes {
		return "", 0, fmt.Errorf("%w: %d bytes > %d", ErrTooLarge, info.Size(), m.maxFileBytes)
	}
	return real, info.Size(), nil
}

func (m *Manager) contains(real string) bool {
	for _, root := range m.allowedDirs {
		rel, err := filepath.Rel(root, real)
		if err != nil || rel == "." {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
