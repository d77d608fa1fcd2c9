package domain

// Item is anything a Feed can hold. Timestamps are backend-formatted strings
// that sort lexically in chronological order.
type Item interface {
	ItemID() string
	ItemTimestamp() string
}

// Matchable is implemented by items that can reach a feed under a locally
// made-up id. A feed treats items with equal MatchKey as one item and never
// sends an id the backend did not issue to Delete.
type Matchable interface {
	MatchKey() string
	HasServerID() bool
}

// User is the public view of a PetBook account.
type User struct {
	ID                string `json:"id"`
	Username          string `json:"username"`
	Email             string `json:"email,omitempty"`
	Bio               string `json:"bio,omitempty"`
	Phone             string `json:"phone,omitempty"`
	ProfilePictureURL string `json:"profile_picture_url,omitempty"`
}

// Post is a single entry on the timeline.
type Post struct {
	// ID is the backend identifier of the post.
	ID string `json:"id"`

	// Content is the post body text.
	Content string `json:"content"`

	// Images holds the URLs of attached pictures, in display order.
	Images []string `json:"images"`

	// Location is a free-form place name set by the author.
	Location string `json:"location,omitempty"`

	// User is the author.
	User User `json:"user"`

	// Timestamp is when the post was created.
	Timestamp string `json:"timestamp"`

	// Reactions maps a reaction kind to the number of users who chose it.
	Reactions map[ReactionKind]int `json:"reactions,omitempty"`
}

func (p Post) ItemID() string        { return p.ID }
func (p Post) ItemTimestamp() string { return p.Timestamp }

// NewPost is the payload for creating a post.
type NewPost struct {
	Content  string   `json:"content"`
	Images   []string `json:"images,omitempty"`
	Location string   `json:"location,omitempty"`
}

// Comment is a reply under a post.
type Comment struct {
	ID        string `json:"id"`
	PostID    string `json:"post_id"`
	Content   string `json:"content"`
	User      User   `json:"user"`
	Timestamp string `json:"timestamp"`
}

func (c Comment) ItemID() string        { return c.ID }
func (c Comment) ItemTimestamp() string { return c.Timestamp }

// NewComment is the payload for creating a comment. The post is fixed by the
// feed the comment is created in.
type NewComment struct {
	Content string `json:"content"`
}
