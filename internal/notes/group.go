package notes

// Listing is the default dashboard view of a user's notes.
type Listing struct {
	Pinned []Note
	Others []Note
}

// Group splits notes into pinned and other notes, preserving order.
// Archived notes belong to neither group.
func Group(notes []Note) Listing {
	listing := Listing{
		Pinned: make([]Note, 0),
		Others: make([]Note, 0),
	}
	for _, note := range notes {
		if note.Archived {
			continue
		}
		if note.Pinned {
			listing.Pinned = append(listing.Pinned, note)
			continue
		}
		listing.Others = append(listing.Others, note)
	}
	return listing
}

// Archived returns only the archived notes, preserving order.
func Archived(notes []Note) []Note {
	archived := make([]Note, 0)
	for _, note := range notes {
		if note.Archived {
			archived = append(archived, note)
		}
	}
	return archived
}
