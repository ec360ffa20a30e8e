// Package validator checks request and usecase input structs against their
// `validate` tags and reports failures per snake_case field.
package validator

// Validator validates a struct by its tags.
type Validator interface {
	Validate(data any) error
}
