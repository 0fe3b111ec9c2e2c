package repo

import (
	"context"
	"database/sql"

	"bookstore-payment/internal/domain"
)

// BookRepo is the read side of the catalog the order core depends on.
type BookRepo interface {
	FindById(ctx context.Context, id string) (*domain.Book, error)
}

type bookRepo struct {
	db *sql.DB
}

func NewBookRepo(db *sql.DB) BookRepo {
	return &bookRepo{db: db}
}

func (r *bookRepo) FindById(ctx context.Context, id string) (*domain.Book, error) {
	var book domain.Book
	err := r.db.QueryRowContext(ctx, "SELECT id, title, price FROM books WHERE id = $1", id).Scan(
		&book.ID,
		&book.Title,
		&book.Price,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}
