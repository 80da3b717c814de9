// Package bookstore persists reconciled records into the SQLite store. It is
// a sink: it never reaches back into the providers, and everything it writes
// comes off a CanonicalRecord or the enrichment attachments.
package bookstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/livrario/ingest/pkg/database"
	"github.com/livrario/ingest/pkg/errcodes"
	"github.com/livrario/ingest/pkg/identifiers"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// Attachment caps, matching how many of each the catalog surfaces.
const (
	maxPlaces = 5
	maxGenres = 3
)

type Service struct {
	db         *bun.DB
	maxRetries int
}

func NewService(db *bun.DB, maxRetries int) *Service {
	return &Service{db: db, maxRetries: maxRetries}
}

// UpsertBookParams carries the writable book fields. Empty fields never
// overwrite existing values on update.
type UpsertBookParams struct {
	ISBN13      string
	Title       string
	AuthorName  string
	Synopsis    string
	Language    string
	CoverKey    string
	WorkID      string
	PublishDate string
}

// UpsertBook inserts the book row keyed by ISBN-13, or updates it field by
// field, keeping existing values wherever the incoming field is empty. The
// author row is created on first sight of the name.
func (svc *Service) UpsertBook(ctx context.Context, params *UpsertBookParams) (*Book, error) {
	isbn := identifiers.Digits(params.ISBN13)
	if !identifiers.IsISBN13(isbn) {
		return nil, errcodes.ValidationError("A valid ISBN-13 is required to store a book.")
	}

	var book *Book
	err := database.RetryOnBusy(ctx, svc.maxRetries, func() error {
		return svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
			authorID := ""
			if params.AuthorName != "" {
				id, err := ensureAuthor(ctx, tx, params.AuthorName)
				if err != nil {
					return err
				}
				authorID = id
			}

			now := time.Now()
			existing := &Book{}
			err := tx.NewSelect().Model(existing).Where("isbn13 = ?", isbn).Scan(ctx)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return errors.WithStack(err)
			}

			if errors.Is(err, sql.ErrNoRows) {
				id, err := uuid.NewRandom()
				if err != nil {
					return errors.WithStack(err)
				}
				book = &Book{
					ID:          id.String(),
					ISBN13:      isbn,
					Title:       params.Title,
					AuthorID:    authorID,
					Synopsis:    params.Synopsis,
					Language:    params.Language,
					CoverKey:    params.CoverKey,
					WorkID:      params.WorkID,
					PublishDate: params.PublishDate,
					CreatedAt:   now,
					UpdatedAt:   now,
				}
				_, err2 := tx.NewInsert().Model(book).Exec(ctx)
				return errors.WithStack(err2)
			}

			setIfPresent(&existing.Title, params.Title)
			setIfPresent(&existing.AuthorID, authorID)
			setIfPresent(&existing.Synopsis, params.Synopsis)
			setIfPresent(&existing.Language, params.Language)
			setIfPresent(&existing.CoverKey, params.CoverKey)
			setIfPresent(&existing.WorkID, params.WorkID)
			setIfPresent(&existing.PublishDate, params.PublishDate)
			existing.UpdatedAt = now

			_, err = tx.NewUpdate().Model(existing).WherePK().Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
			book = existing
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return book, nil
}

// UpdateAuthorDescription sets the bio on an author row. Unknown names are a
// no-op rather than an error, since the bio step is best-effort.
func (svc *Service) UpdateAuthorDescription(ctx context.Context, name, description string) error {
	if name == "" || description == "" {
		return nil
	}
	return database.RetryOnBusy(ctx, svc.maxRetries, func() error {
		_, err := svc.db.NewUpdate().
			Model((*Author)(nil)).
			Set("description = ?", description).
			Set("updated_at = ?", time.Now()).
			Where("name = ?", name).
			Exec(ctx)
		return errors.WithStack(err)
	})
}

// AttachCharacters links the named characters to the book, creating character
// rows as needed. It returns how many links were attached.
func (svc *Service) AttachCharacters(ctx context.Context, isbn13 string, names []string) (int, error) {
	names = identifiers.Dedup(trimNonEmpty(names))
	return svc.attach(ctx, isbn13, names, func(ctx context.Context, tx bun.Tx, bookID, name string) error {
		id, err := ensureCharacter(ctx, tx, name)
		if err != nil {
			return err
		}
		_, err = tx.NewInsert().
			Model(&BookCharacter{BookID: bookID, CharacterID: id}).
			On("CONFLICT DO NOTHING").
			Exec(ctx)
		return errors.WithStack(err)
	})
}

// AttachPlaces links up to maxPlaces of the named places to the book in the
// given order.
func (svc *Service) AttachPlaces(ctx context.Context, isbn13 string, names []string) (int, error) {
	names = identifiers.Dedup(trimNonEmpty(names))
	if len(names) > maxPlaces {
		names = names[:maxPlaces]
	}
	ord := 0
	return svc.attach(ctx, isbn13, names, func(ctx context.Context, tx bun.Tx, bookID, name string) error {
		id, err := ensurePlace(ctx, tx, name)
		if err != nil {
			return err
		}
		ord++
		_, err = tx.NewInsert().
			Model(&BookPlace{BookID: bookID, PlaceID: id, Ord: ord}).
			On("CONFLICT DO NOTHING").
			Exec(ctx)
		return errors.WithStack(err)
	})
}

// AttachGenres replaces the book's genre labels with up to maxGenres of the
// given ones, in order.
func (svc *Service) AttachGenres(ctx context.Context, isbn13 string, names []string) (int, error) {
	names = identifiers.Dedup(trimNonEmpty(names))
	if len(names) > maxGenres {
		names = names[:maxGenres]
	}

	isbn := identifiers.Digits(isbn13)
	count := 0
	err := database.RetryOnBusy(ctx, svc.maxRetries, func() error {
		count = 0
		return svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
			bookID, err := bookIDForISBN(ctx, tx, isbn)
			if err != nil {
				return err
			}
			_, err = tx.NewDelete().
				Model((*BookGenre)(nil)).
				Where("book_id = ?", bookID).
				Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
			for i, name := range names {
				_, err = tx.NewInsert().
					Model(&BookGenre{BookID: bookID, Name: name, Ord: i + 1}).
					Exec(ctx)
				if err != nil {
					return errors.WithStack(err)
				}
				count++
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// GetBookInfo returns the book row with its author loaded.
func (svc *Service) GetBookInfo(ctx context.Context, isbn13 string) (*Book, error) {
	book := &Book{}
	err := svc.db.NewSelect().
		Model(book).
		Relation("Author").
		Where("isbn13 = ?", identifiers.Digits(isbn13)).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errcodes.NotFound("Book")
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return book, nil
}

// GetAuthorByISBN returns the author of the book keyed by isbn13.
func (svc *Service) GetAuthorByISBN(ctx context.Context, isbn13 string) (*Author, error) {
	book, err := svc.GetBookInfo(ctx, isbn13)
	if err != nil {
		return nil, err
	}
	if book.Author == nil {
		return nil, errcodes.NotFound("Author")
	}
	return book.Author, nil
}

// GetCoverKeyByISBN returns the stored cover object key for the book.
func (svc *Service) GetCoverKeyByISBN(ctx context.Context, isbn13 string) (string, error) {
	book, err := svc.GetBookInfo(ctx, isbn13)
	if err != nil {
		return "", err
	}
	if book.CoverKey == "" {
		return "", errcodes.NotFound("Cover")
	}
	return book.CoverKey, nil
}

// PreferredGenres picks the labels to attach: canonical labels win over raw
// tags, capped at maxGenres.
func PreferredGenres(all, canonical []string) []string {
	if len(canonical) > 0 {
		set := make(map[string]struct{}, len(canonical))
		for _, g := range canonical {
			set[g] = struct{}{}
		}
		var preferred []string
		for _, g := range all {
			if _, ok := set[g]; ok {
				preferred = append(preferred, g)
			}
		}
		if len(preferred) > 0 {
			all = preferred
		}
	}
	out := identifiers.Dedup(all)
	if len(out) > maxGenres {
		out = out[:maxGenres]
	}
	return out
}

func (svc *Service) attach(ctx context.Context, isbn13 string, names []string, link func(ctx context.Context, tx bun.Tx, bookID, name string) error) (int, error) {
	isbn := identifiers.Digits(isbn13)
	count := 0
	err := database.RetryOnBusy(ctx, svc.maxRetries, func() error {
		count = 0
		return svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
			bookID, err := bookIDForISBN(ctx, tx, isbn)
			if err != nil {
				return err
			}
			for _, name := range names {
				if err := link(ctx, tx, bookID, name); err != nil {
					return err
				}
				count++
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func bookIDForISBN(ctx context.Context, tx bun.Tx, isbn string) (string, error) {
	book := &Book{}
	err := tx.NewSelect().Model(book).Column("id").Where("isbn13 = ?", isbn).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errcodes.NotFound("Book")
	}
	if err != nil {
		return "", errors.WithStack(err)
	}
	return book.ID, nil
}

func ensureAuthor(ctx context.Context, tx bun.Tx, name string) (string, error) {
	author := &Author{}
	err := tx.NewSelect().Model(author).Where("name = ?", name).Scan(ctx)
	if err == nil {
		return author.ID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", errors.WithStack(err)
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return "", errors.WithStack(err)
	}
	now := time.Now()
	author = &Author{ID: id.String(), Name: name, CreatedAt: now, UpdatedAt: now}
	if _, err := tx.NewInsert().Model(author).Exec(ctx); err != nil {
		return "", errors.WithStack(err)
	}
	return author.ID, nil
}

func ensureCharacter(ctx context.Context, tx bun.Tx, name string) (string, error) {
	c := &Character{}
	err := tx.NewSelect().Model(c).Where("name = ?", name).Scan(ctx)
	if err == nil {
		return c.ID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", errors.WithStack(err)
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return "", errors.WithStack(err)
	}
	c = &Character{ID: id.String(), Name: name}
	if _, err := tx.NewInsert().Model(c).Exec(ctx); err != nil {
		return "", errors.WithStack(err)
	}
	return c.ID, nil
}

func ensurePlace(ctx context.Context, tx bun.Tx, name string) (string, error) {
	p := &Place{}
	err := tx.NewSelect().Model(p).Where("name = ?", name).Scan(ctx)
	if err == nil {
		return p.ID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", errors.WithStack(err)
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return "", errors.WithStack(err)
	}
	p = &Place{ID: id.String(), Name: name}
	if _, err := tx.NewInsert().Model(p).Exec(ctx); err != nil {
		return "", errors.WithStack(err)
	}
	return p.ID, nil
}

func setIfPresent(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func trimNonEmpty(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}
