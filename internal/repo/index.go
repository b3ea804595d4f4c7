package repo

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-memdb"

	"github.com/catalogd/catalogd/internal/domain"
)

// catalogIndex holds the active profile's channel snapshot in an in-memory
// indexed table so id and category lookups don't scan. Rebuilt wholesale
// whenever the snapshot is replaced; never mutated in place.
type catalogIndex struct {
	db *memdb.MemDB
}

var channelSchema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		"channel": {
			Name: "channel",
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"category": {
					Name:         "category",
					AllowMissing: true,
					Indexer:      &memdb.StringFieldIndex{Field: "CategoryID"},
				},
				"type": {
					Name:    "type",
					Indexer: &memdb.StringFieldIndex{Field: "Type"},
				},
			},
		},
	},
}

// newCatalogIndex builds a fresh index over channels. Duplicate IDs keep the
// last occurrence, matching map semantics upstream.
func newCatalogIndex(channels []domain.Channel) (*catalogIndex, error) {
	db, err := memdb.NewMemDB(channelSchema)
	if err != nil {
		return nil, fmt.Errorf("catalog index schema: %w", err)
	}
	txn := db.Txn(true)
	for i := range channels {
		ch := channels[i]
		if err := txn.Insert("channel", &ch); err != nil {
			txn.Abort()
			return nil, fmt.Errorf("catalog index insert: %w", err)
		}
	}
	txn.Commit()
	return &catalogIndex{db: db}, nil
}

// byID returns the channel with the given id, or nil.
func (x *catalogIndex) byID(id string) *domain.Channel {
	txn := x.db.Txn(false)
	defer txn.Abort()
	raw, err := txn.First("channel", "id", id)
	if err != nil || raw == nil {
		return nil
	}
	return raw.(*domain.Channel)
}

// byCategory returns all channels in a category, sorted by name.
func (x *catalogIndex) byCategory(categoryID string) []domain.Channel {
	txn := x.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get("channel", "category", categoryID)
	if err != nil {
		return nil
	}
	var out []domain.Channel
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, *raw.(*domain.Channel))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// byType returns all channels of one content type, sorted by name.
func (x *catalogIndex) byType(t domain.ContentType) []domain.Channel {
	txn := x.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get("channel", "type", string(t))
	if err != nil {
		return nil
	}
	var out []domain.Channel
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, *raw.(*domain.Channel))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
