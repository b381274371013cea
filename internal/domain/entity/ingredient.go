package entity

// Ingredient is an internal stock item. The directory is owned by an
// external collaborator; this engine reads it and links lots to it but
// never mutates it.
type Ingredient struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	Unit     string `json:"unit"`
	Active   bool   `json:"active"`
}
