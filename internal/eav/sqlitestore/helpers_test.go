package sqlitestore_test

import "github.com/starford/kiln/internal/models"

func eavRecord(path string) models.NoteRecord {
	return models.NoteRecord{Path: path, Title: path, Tags: []string{"load"}, Links: []string{"n0-0"}}
}
