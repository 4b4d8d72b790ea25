package dto

// UnreadCountResult wraps the unread notification counter.
type UnreadCountResult struct {
	Unread int `json:"unread"`
}
