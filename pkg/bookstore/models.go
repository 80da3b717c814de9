package bookstore

import (
	"time"

	"github.com/uptrace/bun"
)

// Book is one ingested book, keyed by its canonical-form ISBN-13. Title,
// synopsis, and cover key come from the reconciled record; the author is a
// single denormalized primary author.
type Book struct {
	bun.BaseModel `bun:"table:books,alias:b"`

	ID          string  `bun:",pk,nullzero" json:"id"`
	ISBN13      string  `bun:",nullzero,unique" json:"isbn13"`
	Title       string  `bun:",nullzero" json:"title"`
	AuthorID    string  `bun:",nullzero" json:"author_id"`
	Author      *Author `bun:"rel:belongs-to" json:"author,omitempty"`
	Synopsis    string  `bun:",nullzero" json:"synopsis"`
	Language    string  `bun:",nullzero" json:"language"`
	CoverKey    string  `bun:",nullzero" json:"cover_key"`
	WorkID      string  `bun:",nullzero" json:"work_id"`
	PublishDate string  `bun:",nullzero" json:"publish_date"`

	CreatedAt time.Time `bun:",nullzero" json:"created_at"`
	UpdatedAt time.Time `bun:",nullzero" json:"updated_at"`
}

// Author is a person, unique by name, with an optional biographical extract.
type Author struct {
	bun.BaseModel `bun:"table:authors,alias:a"`

	ID          string `bun:",pk,nullzero" json:"id"`
	Name        string `bun:",nullzero,unique" json:"name"`
	Description string `bun:",nullzero" json:"description"`

	CreatedAt time.Time `bun:",nullzero" json:"created_at"`
	UpdatedAt time.Time `bun:",nullzero" json:"updated_at"`
}

// Character is a fictional character, unique by name, shared across books.
type Character struct {
	bun.BaseModel `bun:"table:characters,alias:c"`

	ID   string `bun:",pk,nullzero" json:"id"`
	Name string `bun:",nullzero,unique" json:"name"`
}

// Place is a location, unique by name, shared across books.
type Place struct {
	bun.BaseModel `bun:"table:places,alias:p"`

	ID   string `bun:",pk,nullzero" json:"id"`
	Name string `bun:",nullzero,unique" json:"name"`
}

// BookCharacter links a book to one of its characters.
type BookCharacter struct {
	bun.BaseModel `bun:"table:book_characters,alias:bc"`

	BookID      string `bun:",pk,nullzero" json:"book_id"`
	CharacterID string `bun:",pk,nullzero" json:"character_id"`
}

// BookPlace links a book to a place, ordered by relevance.
type BookPlace struct {
	bun.BaseModel `bun:"table:book_places,alias:bp"`

	BookID  string `bun:",pk,nullzero" json:"book_id"`
	PlaceID string `bun:",pk,nullzero" json:"place_id"`
	Ord     int    `bun:",nullzero" json:"ord"`
}

// BookGenre is one genre label on a book, ordered by relevance. Genres are
// plain labels rather than entities; the classifier already canonicalizes
// them.
type BookGenre struct {
	bun.BaseModel `bun:"table:book_genres,alias:bg"`

	BookID string `bun:",pk,nullzero" json:"book_id"`
	Name   string `bun:",pk,nullzero" json:"name"`
	Ord    int    `bun:",nullzero" json:"ord"`
}
