package domain

import "github.com/shopspring/decimal"

type Book struct {
	ID    string
	Title string
	Price decimal.Decimal
}
