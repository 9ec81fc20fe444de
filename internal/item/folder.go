package item

import "time"

// Folder is a named, independently persisted collection. ItemIDs is the
// membership index; the item payloads live in a separate encrypted blob
// keyed by the folder ID.
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ItemIDs   []string  `json:"item_ids"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Contains reports whether the membership index holds itemID.
func (f *Folder) Contains(itemID string) bool {
	for _, id := range f.ItemIDs {
		if id == itemID {
			return true
		}
	}
	return false
}

// Clone returns a copy with its own membership slice.
func (f *Folder) Clone() *Folder {
	if f == nil {
		return nil
	}
	c := *f
	c.ItemIDs = append([]string(nil), f.ItemIDs...)
	return &c
}
