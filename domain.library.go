package main

import (
	"context"
	"strings"
	"time"
)

// Collections names shared by all storage drivers.
const (
	ClientsCollection = "clientes"
	AuthorsCollection = "autores"
	BooksCollection   = "livros"
	LoansCollection   = "emprestimos"
	FinesCollection   = "multas"
)

// Identifiers prefixes per resource.
const (
	ClientIDPrefix string = "cl"
	AuthorIDPrefix string = "au"
	BookIDPrefix   string = "bk"
	LoanIDPrefix   string = "ln"
	FineIDPrefix   string = "fn"
)

// dateLayouts lists the accepted formats for date fields.
var dateLayouts = []string{"2006-01-02", time.RFC3339}

// Entity is implemented by every library document.
type Entity interface {
	GetID() string
	SetID(id string)
	// Validate checks the fields present on the document. With creating
	// set to true, the mandatory fields must be present as well.
	Validate(creating bool) error
}

// EntityPtr constrains a type parameter to be a pointer to E which implements Entity.
type EntityPtr[E any] interface {
	*E
	Entity
}

// Storage defines possible operations on a collection of documents.
type Storage[E any] interface {
	Add(ctx context.Context, id string, doc *E) error
	GetOne(ctx context.Context, id string) (*E, error)
	GetAll(ctx context.Context) ([]E, error)
	Update(ctx context.Context, id string, patch *E) (*E, error)
	Delete(ctx context.Context, id string) (*E, error)
}

// Pinger reports whether a storage backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Client represents a library client.
type Client struct {
	ID      string  `json:"_id,omitempty" bson:"_id,omitempty"`
	Name    *string `json:"nome,omitempty" bson:"nome,omitempty"`
	Email   *string `json:"email,omitempty" bson:"email,omitempty"`
	Phone   *string `json:"telefone,omitempty" bson:"telefone,omitempty"`
	Address *string `json:"endereco,omitempty" bson:"endereco,omitempty"`
	TaxID   *string `json:"cpf,omitempty" bson:"cpf,omitempty"`
}

func (c *Client) GetID() string   { return c.ID }
func (c *Client) SetID(id string) { c.ID = id }

func (c *Client) Validate(creating bool) error {
	if creating && isBlank(c.Name) {
		return missingFieldError("nome")
	}
	return nil
}

// Author represents a book author.
type Author struct {
	ID          string  `json:"_id,omitempty" bson:"_id,omitempty"`
	Name        *string `json:"nome,omitempty" bson:"nome,omitempty"`
	Nationality *string `json:"nacionalidade,omitempty" bson:"nacionalidade,omitempty"`
	BirthDate   *string `json:"dataNascimento,omitempty" bson:"dataNascimento,omitempty"`
	Biography   *string `json:"biografia,omitempty" bson:"biografia,omitempty"`
}

func (a *Author) GetID() string   { return a.ID }
func (a *Author) SetID(id string) { a.ID = id }

func (a *Author) Validate(creating bool) error {
	if creating && isBlank(a.Name) {
		return missingFieldError("nome")
	}
	return validateDate("dataNascimento", a.BirthDate)
}

// Book represents a book. Author holds the identifier of an author
// and is never checked against the authors collection.
type Book struct {
	ID        string  `json:"_id,omitempty" bson:"_id,omitempty"`
	Title     *string `json:"titulo,omitempty" bson:"titulo,omitempty"`
	Author    *string `json:"autor,omitempty" bson:"autor,omitempty"`
	ISBN      *string `json:"isbn,omitempty" bson:"isbn,omitempty"`
	Genre     *string `json:"genero,omitempty" bson:"genero,omitempty"`
	Publisher *string `json:"editora,omitempty" bson:"editora,omitempty"`
	Year      *int    `json:"anoPublicacao,omitempty" bson:"anoPublicacao,omitempty"`
}

func (b *Book) GetID() string   { return b.ID }
func (b *Book) SetID(id string) { b.ID = id }

func (b *Book) Validate(creating bool) error {
	if creating && isBlank(b.Title) {
		return missingFieldError("titulo")
	}
	return nil
}

// Loan represents a book lent to a client.
type Loan struct {
	ID         string  `json:"_id,omitempty" bson:"_id,omitempty"`
	Client     *string `json:"cliente,omitempty" bson:"cliente,omitempty"`
	Book       *string `json:"livro,omitempty" bson:"livro,omitempty"`
	LoanDate   *string `json:"dataEmprestimo,omitempty" bson:"dataEmprestimo,omitempty"`
	DueDate    *string `json:"dataDevolucaoPrevista,omitempty" bson:"dataDevolucaoPrevista,omitempty"`
	ReturnDate *string `json:"dataDevolucao,omitempty" bson:"dataDevolucao,omitempty"`
}

func (l *Loan) GetID() string   { return l.ID }
func (l *Loan) SetID(id string) { l.ID = id }

func (l *Loan) Validate(creating bool) error {
	if creating {
		if isBlank(l.Client) {
			return missingFieldError("cliente")
		}
		if isBlank(l.Book) {
			return missingFieldError("livro")
		}
	}
	if err := validateDate("dataEmprestimo", l.LoanDate); err != nil {
		return err
	}
	if err := validateDate("dataDevolucaoPrevista", l.DueDate); err != nil {
		return err
	}
	return validateDate("dataDevolucao", l.ReturnDate)
}

// Fine represents an amount owed for a loan.
type Fine struct {
	ID     string   `json:"_id,omitempty" bson:"_id,omitempty"`
	Loan   *string  `json:"emprestimo,omitempty" bson:"emprestimo,omitempty"`
	Amount *float64 `json:"valor,omitempty" bson:"valor,omitempty"`
	Paid   *bool    `json:"pago,omitempty" bson:"pago,omitempty"`
	Reason *string  `json:"motivo,omitempty" bson:"motivo,omitempty"`
}

func (f *Fine) GetID() string   { return f.ID }
func (f *Fine) SetID(id string) { f.ID = id }

func (f *Fine) Validate(creating bool) error {
	if creating {
		if isBlank(f.Loan) {
			return missingFieldError("emprestimo")
		}
		if f.Amount == nil {
			return missingFieldError("valor")
		}
	}
	if f.Amount != nil && *f.Amount < 0 {
		return ValidationError("valor must not be negative")
	}
	return nil
}

func isBlank(s *string) bool {
	return s == nil || len(strings.TrimSpace(*s)) == 0
}

// validateDate accepts a nil value or a date in one of dateLayouts.
func validateDate(field string, value *string) error {
	if value == nil {
		return nil
	}
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, *value); err == nil {
			return nil
		}
	}
	return ValidationError(field + " must be a YYYY-MM-DD or RFC3339 date")
}
