package service

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path"
	"unicode/utf8"

	"github.com/quantopian/pgcontents/internal/config"
	"github.com/quantopian/pgcontents/internal/crypto"
	"github.com/quantopian/pgcontents/internal/domain"
	"github.com/quantopian/pgcontents/internal/domain/models"
)

// preprocessContent encrypts content on its way to a file or checkpoint row
// and applies the size limit. The limit applies to the encrypted payload,
// the thing that actually lands in the row.
func preprocessContent(c crypto.Crypto, maxSize int64, apiPath string, plaintext []byte) ([]byte, error) {
	ciphertext, err := c.Encrypt(plaintext)
	if err != nil {
		return nil, err
	}
	if maxSize != config.UnlimitedFileSize && int64(len(ciphertext)) > maxSize {
		return nil, fmt.Errorf("file %s exceeds %d bytes: %w", apiPath, maxSize, domain.ErrFileTooLarge)
	}
	return ciphertext, nil
}

func baseModel(apiPath string) *models.Content {
	return &models.Content{
		Name:     path.Base(apiPath),
		Path:     apiPath,
		Writable: true,
	}
}

// encodeIncoming turns a save request's content field into the byte payload
// stored in the database. Notebooks are stored as their JSON serialization,
// text files as UTF-8 and base64 files as the decoded bytes.
func encodeIncoming(req *SaveRequest) ([]byte, error) {
	switch req.Type {
	case models.TypeNotebook:
		payload, err := json.Marshal(req.Content)
		if err != nil {
			return nil, fmt.Errorf("encode notebook: %v", err)
		}
		return payload, nil
	case models.TypeFile:
		text, ok := req.Content.(string)
		if !ok {
			return nil, fmt.Errorf("file content must be a string")
		}
		if req.Format == models.FormatBase64 {
			payload, err := base64.StdEncoding.DecodeString(text)
			if err != nil {
				return nil, fmt.Errorf("decode base64 content: %v", err)
			}
			return payload, nil
		}
		return []byte(text), nil
	default:
		return nil, fmt.Errorf("type %q carries no content", req.Type)
	}
}

// attachContent fills in the content, format and mimetype fields of a file
// model from the decrypted payload. An empty format means "choose": the
// extension registry decides, falling back to base64 when the payload is
// not valid UTF-8.
func (s *ContentsService) attachContent(model *models.Content, plaintext []byte, format string) error {
	if model.Type == models.TypeNotebook {
		var nb any
		if err := json.Unmarshal(plaintext, &nb); err != nil {
			return fmt.Errorf("%w: notebook is not valid JSON", domain.ErrCorruptedFile)
		}
		model.Content = nb
		jsonFormat := models.FormatJSON
		model.Format = &jsonFormat
		return nil
	}

	ft := s.registry.Guess(model.Path)

	if format == "" {
		if ft.Format == models.FormatText && utf8.Valid(plaintext) {
			format = models.FormatText
		} else {
			format = models.FormatBase64
		}
	}

	switch format {
	case models.FormatText:
		if !utf8.Valid(plaintext) {
			return fmt.Errorf("%w: %s is not UTF-8, retrieve it as base64", domain.ErrValidation, model.Path)
		}
		model.Content = string(plaintext)
		mimetype := "text/plain"
		if ft.Format == models.FormatText {
			mimetype = ft.Mimetype
		}
		model.Mimetype = &mimetype
	case models.FormatBase64:
		model.Content = base64.StdEncoding.EncodeToString(plaintext)
		mimetype := "application/octet-stream"
		model.Mimetype = &mimetype
	default:
		return fmt.Errorf("%w: unknown format %q", domain.ErrValidation, format)
	}

	model.Format = &format
	return nil
}
