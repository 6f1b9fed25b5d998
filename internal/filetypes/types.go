package filetypes

// FileType describes how content under one extension is modeled: which
// content type it maps to, the wire format its body uses, and the mimetype
// reported for it.
type FileType struct {
	// Extension identifier (set during YAML unmarshaling), e.g. ".ipynb".
	Extension string `yaml:"-" json:"extension"`

	Type     string `yaml:"type" json:"type"`
	Format   string `yaml:"format" json:"format"`
	Mimetype string `yaml:"mimetype" json:"mimetype"`
}

// registryFile is the on-disk layout of the embedded YAML registry.
type registryFile struct {
	Extensions map[string]FileType `yaml:"extensions"`
	Default    FileType            `yaml:"default"`
}
