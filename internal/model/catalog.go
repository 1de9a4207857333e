package model

import "time"

// Reader is a library patron who can borrow and reserve books.
type Reader struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email,omitempty"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Book is a catalog title. Physical copies reference it.
type Book struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	Author    string     `json:"author,omitempty"`
	ISBN      string     `json:"isbn,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}
