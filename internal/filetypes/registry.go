// Package filetypes maps file extensions to content types, wire formats and
// mimetypes. The mapping ships as an embedded YAML registry so deployments
// rebuild rather than reconfigure it.
package filetypes

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed config/*.yaml
var configFiles embed.FS

// Registry resolves file extensions to their FileType.
type Registry struct {
	extensions map[string]FileType
	fallback   FileType
	mu         sync.RWMutex
}

// NewRegistry creates a registry from the embedded YAML file.
func NewRegistry() (*Registry, error) {
	data, err := configFiles.ReadFile("config/filetypes.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read filetypes config: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal filetypes config: %w", err)
	}
	if file.Default.Type == "" || file.Default.Format == "" {
		return nil, fmt.Errorf("filetypes config is missing a default entry")
	}

	r := &Registry{
		extensions: make(map[string]FileType, len(file.Extensions)),
		fallback:   file.Default,
	}
	for ext, ft := range file.Extensions {
		ft.Extension = strings.ToLower(ext)
		r.extensions[ft.Extension] = ft
	}
	return r, nil
}

// Guess resolves the FileType for a path by its extension. Unknown
// extensions get the registry's default (an opaque base64 file).
func (r *Registry) Guess(path string) FileType {
	ext := ""
	if idx := strings.LastIndex(path, "."); idx >= 0 && idx > strings.LastIndex(path, "/") {
		ext = strings.ToLower(path[idx:])
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if ft, ok := r.extensions[ext]; ok {
		return ft
	}
	fallback := r.fallback
	fallback.Extension = ext
	return fallback
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.extensions))
	for ext := range r.extensions {
		exts = append(exts, ext)
	}
	return exts
}
