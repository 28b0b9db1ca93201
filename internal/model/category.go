package model

// Category groups extracts in the library. Opening one needs at least MinAccess.
type Category struct {
	ID        string        `json:"id"`
	Label     string        `json:"label"`
	MinAccess ExtractAccess `json:"min_access"`
}
