package model

// ID is the server-assigned identifier of a post. Zero means the server
// has not confirmed the post yet.
type ID int64

// Draft holds the fields a user types in before anything is sent.
type Draft struct {
	Title string `json:"title"`
}

// Post is the domain model for a post entry.
// A post with a zero ID is an optimistic, unconfirmed create.
type Post struct {
	ID     ID     `json:"id,omitempty"`
	Title  string `json:"title"`
	IsRead bool   `json:"isRead"`
}

// NewPost builds the unconfirmed post for a draft.
func NewPost(d Draft) *Post {
	return &Post{Title: d.Title}
}

// Persisted reports whether the server has assigned an ID.
func (p *Post) Persisted() bool { return p.ID != 0 }

// Patch is a partial update. Nil fields are left as they are.
type Patch struct {
	Title  *string `json:"title,omitempty"`
	IsRead *bool   `json:"isRead,omitempty"`
}

// Apply writes the set fields onto p.
func (pt Patch) Apply(p *Post) {
	if pt.Title != nil {
		p.Title = *pt.Title
	}
	if pt.IsRead != nil {
		p.IsRead = *pt.IsRead
	}
}

// MarkRead returns a patch setting the read flag.
func MarkRead(read bool) Patch { return Patch{IsRead: &read} }

// Rename returns a patch setting the title.
func Rename(title string) Patch { return Patch{Title: &title} }
