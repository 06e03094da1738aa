// Package validate provides the lightweight Validator interface the rest
// of the tree composes with github.com/go-playground/validator/v10:
// struct tags cover field-level rules, this interface covers the rules a
// tag cannot express (cross-field consistency). Dependency cycles are
// detected by the DAG builder, not through this interface.
package validate

type Validator interface {
	Validate() error
}

func Validate(obj any) error {
	validator, isImplement := obj.(Validator)
	if isImplement {
		return validator.Validate()
	}
	return nil
}
