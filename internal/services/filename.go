package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Lllllllleong/documentpdfflow/internal/models"
)

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Filename is the object name of a document's PDF. It depends only on the
// document type and the UID (or the surrogate id when there is no UID), so
// regenerating a document overwrites its previous upload.
func Filename(docType models.DocumentType, doc *models.Document) (string, error) {
	cfg, err := models.ConfigFor(docType)
	if err != nil {
		return "", err
	}
	if doc == nil {
		return "", fmt.Errorf("no document header")
	}

	uid := strings.TrimSpace(doc.UID)
	if cfg.UIDPrefix != "" && len(uid) >= len(cfg.UIDPrefix) && strings.EqualFold(uid[:len(cfg.UIDPrefix)], cfg.UIDPrefix) {
		uid = uid[len(cfg.UIDPrefix):]
	}
	if uid = sanitize(uid); uid != "" {
		return uid + ".pdf", nil
	}

	id := sanitize(doc.ID)
	if id == "" {
		return "", fmt.Errorf("%s has neither uid nor id", docType)
	}
	return cfg.FilePrefix + id + ".pdf", nil
}

// StorageKey is "{folder}/{filename}".
func StorageKey(docType models.DocumentType, doc *models.Document) (string, error) {
	name, err := Filename(docType, doc)
	if err != nil {
		return "", err
	}
	cfg, _ := models.ConfigFor(docType)
	return cfg.Folder + "/" + name, nil
}

func sanitize(s string) string {
	s = unsafeFilename.ReplaceAllString(strings.TrimSpace(s), "-")
	return strings.Trim(s, "-.")
}
