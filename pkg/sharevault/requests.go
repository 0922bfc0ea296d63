package sharevault

import (
	"errors"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Request DTOs

// CreatePostRequest contains the authoring fields of a new post. The slug is
// derived from the title and cannot be chosen by the author.
type CreatePostRequest struct {
	Title           string   `json:"title"`
	Body            string   `json:"body"`
	Excerpt         string   `json:"excerpt"`
	Category        string   `json:"category"`
	Tags            []string `json:"tags"`
	Featured        bool     `json:"featured"`
	Published       bool     `json:"published"`
	ImageURL        string   `json:"imageUrl"`
	ImageAlt        string   `json:"imageAlt"`
	AuthorID        string   `json:"authorId"`
	ReadTimeMinutes int      `json:"readTime"`
}

// Validate checks the authoring fields.
func (r CreatePostRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 300), validation.By(sluggable)),
		validation.Field(&r.Body, validation.Required),
		validation.Field(&r.Excerpt, validation.Length(0, 1000)),
		validation.Field(&r.Category, validation.Required, validation.Length(1, maxCategoryLength), validation.By(sluggable)),
		validation.Field(&r.Tags, validation.Each(validation.Required, validation.Length(1, 64))),
		validation.Field(&r.ImageURL, validation.Length(0, 2048)),
		validation.Field(&r.ImageAlt, validation.Length(0, 300)),
		validation.Field(&r.ReadTimeMinutes, validation.Min(0)),
	)
}

// UpdatePostRequest replaces the editable fields of an existing post.
// The slug, author and creation time are kept.
type UpdatePostRequest struct {
	ID              string   `json:"-"`
	Title           string   `json:"title"`
	Body            string   `json:"body"`
	Excerpt         string   `json:"excerpt"`
	Category        string   `json:"category"`
	Tags            []string `json:"tags"`
	Featured        bool     `json:"featured"`
	Published       bool     `json:"published"`
	ImageURL        string   `json:"imageUrl"`
	ImageAlt        string   `json:"imageAlt"`
	ReadTimeMinutes int      `json:"readTime"`
}

// Validate checks the authoring fields.
func (r UpdatePostRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ID, validation.Required),
		validation.Field(&r.Title, validation.Required, validation.Length(1, 300)),
		validation.Field(&r.Body, validation.Required),
		validation.Field(&r.Excerpt, validation.Length(0, 1000)),
		validation.Field(&r.Category, validation.Required, validation.Length(1, maxCategoryLength), validation.By(sluggable)),
		validation.Field(&r.Tags, validation.Each(validation.Required, validation.Length(1, 64))),
		validation.Field(&r.ImageURL, validation.Length(0, 2048)),
		validation.Field(&r.ImageAlt, validation.Length(0, 300)),
		validation.Field(&r.ReadTimeMinutes, validation.Min(0)),
	)
}

// sluggable rejects values that have no URL-safe characters at all.
func sluggable(value interface{}) error {
	s, _ := value.(string)
	if s != "" && ToSlug(s) == "" {
		return errors.New("must contain at least one letter or digit")
	}
	return nil
}

// toValidationError converts ozzo-validation errors into a ValidationError
// naming the first offending field.
func toValidationError(err error) error {
	var errs validation.Errors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return &ValidationError{Message: err.Error()}
	}

	fields := make([]string, 0, len(errs))
	for f := range errs {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return &ValidationError{Field: fields[0], Message: errs[fields[0]].Error()}
}
