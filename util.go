package warehouse

import "errors"

// joinErrors filters nils and wraps the rest with errors.Join, returning
// nil if nothing failed. Shared by the parallel query iterator and the
// scheduler's parallel batch runner.
func joinErrors(errs []error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	if len(nonNil) == 0 {
		return nil
	}
	return errors.Join(nonNil...)
}
