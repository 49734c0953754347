package model

// Entity carries the surrogate identifier shared by every persisted record.
// The store assigns ID on first insert (AUTO_INCREMENT); a zero ID means the
// value has not been written yet.  Types embed Entity rather than repeating
// the field.
type Entity struct {
	ID uint64 `json:"id"` // <table>.id
}

// IsNew reports whether the record has not been persisted yet.
func (e Entity) IsNew() bool { return e.ID == 0 }
