package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/quickread/quickread-backend/internal/clients/extractor"
	"github.com/quickread/quickread-backend/internal/domain"
)

// SourceInfo describes where a document came from, as the handlers see it.
type SourceInfo struct {
	Type             string
	OriginalFilename string
	SourcePath       string
	PublicURL        string
	FileSize         int64
}

// FileIDForUpload derives the stable file_id for an uploaded PDF the same
// way the storage key is built: a fresh UUID prefix plus the safe filename.
func FileIDForUpload(filename string) string {
	return strings.ReplaceAll(uuid.New().String(), "-", "") + "_" + SafeFilename(filename)
}

// FileIDForURL derives a stable file_id from the URL itself, so re-analyzing
// the same page maps to the same identity.
func FileIDForURL(url string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(url)))
	return "url_" + hex.EncodeToString(sum[:])[:16]
}

// SafeFilename strips path separators and whitespace so a client-supplied
// name can be embedded in object keys and ids.
func SafeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.Join(strings.Fields(name), "_")
	if name == "" {
		name = "document"
	}
	return name
}

// Normalize turns extractor output into a canonical Document record plus the
// normalized text the chunker will consume. The content hash is computed
// over the normalized text so duplicate detection survives formatting noise
// in the raw extraction.
func Normalize(fileID string, src SourceInfo, res *extractor.Result) (*domain.Document, string, error) {
	switch src.Type {
	case domain.SourceTypePDF, domain.SourceTypeURL:
	default:
		return nil, "", domain.NewError(domain.CodeUnsupportedSource, "source_type must be pdf or url")
	}
	if res == nil {
		return nil, "", domain.NewError(domain.CodeExtractionEmpty, "extractor returned no content")
	}

	text := NormalizeText(res.Text)
	if text == "" {
		return nil, "", domain.NewError(domain.CodeExtractionEmpty, "extracted text is empty")
	}

	sum := sha256.Sum256([]byte(text))

	meta := datatypes.JSON([]byte(`{}`))
	if len(res.Metadata) > 0 {
		if raw, err := json.Marshal(res.Metadata); err == nil {
			meta = datatypes.JSON(raw)
		}
	}

	doc := &domain.Document{
		FileID:           fileID,
		OriginalFilename: src.OriginalFilename,
		SourceType:       src.Type,
		SourcePath:       src.SourcePath,
		FileSize:         src.FileSize,
		PublicURL:        src.PublicURL,
		ContentHash:      hex.EncodeToString(sum[:]),
		Metadata:         meta,
	}
	return doc, text, nil
}

// NormalizeText sanitizes to valid UTF-8, unifies newlines and trims. It is
// deliberately conservative: paragraph structure is what the chunker keys
// boundaries on, so only line endings and NBSPs are rewritten.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToValidUTF8(s, " ")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, " ", " ")
	return strings.TrimSpace(s)
}
