package core

// ValidationResult is the outcome of a validation pass
type ValidationResult struct {
	Valid  bool     `json:"isValid"`
	Errors []string `json:"errors"`
}

// Valid returns a passing result
func Valid() ValidationResult {
	return ValidationResult{Valid: true, Errors: []string{}}
}

// Invalid returns a failing result with the given errors
func Invalid(errs ...string) ValidationResult {
	return ValidationResult{Valid: false, Errors: errs}
}

// Merge folds other into r; r stays valid only if both are
func (r ValidationResult) Merge(other ValidationResult) ValidationResult {
	errs := append(append([]string{}, r.Errors...), other.Errors...)
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// Err returns a *ValidationError for invalid results, nil otherwise
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return &ValidationError{Errors: r.Errors}
}
