package versions

import (
	"bytes"
	"fmt"

	"projecthub/projecthub/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Migration_1_document_payloads_to_disk moves document payloads out of the
// documents table onto shared-disk storage. Earlier deployments stored the
// raw bytes in a "data" column; rows keep only metadata afterwards.
func Migration_1_document_payloads_to_disk(store storage.Storage) func(*gorm.DB) error {
	return func(txn *gorm.DB) error {
		type Document struct {
			Id        uuid.UUID
			ProjectId uuid.UUID
			Data      []byte
		}

		if !txn.Migrator().HasColumn(&Document{}, "data") {
			return nil
		}

		var docs []Document
		result := txn.Table("documents").Where("data IS NOT NULL").Find(&docs)
		if result.Error != nil {
			return fmt.Errorf("error loading document payloads: %w", result.Error)
		}

		for _, doc := range docs {
			path := storage.DocumentPath(doc.ProjectId, doc.Id)
			if err := store.Write(path, bytes.NewReader(doc.Data)); err != nil {
				return fmt.Errorf("error writing payload for document %v: %w", doc.Id, err)
			}
		}

		if err := txn.Migrator().DropColumn(&Document{}, "data"); err != nil {
			return fmt.Errorf("error dropping data column: %w", err)
		}

		return nil
	}
}
