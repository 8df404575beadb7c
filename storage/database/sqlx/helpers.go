package sqlxrepos

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/somahq/soma/core"
)

var errUnknownOrdering = errors.New("unknown ordering field")

// uniqueViolation is postgres error class 23505.
const uniqueViolation = "23505"

// orderBy renders an ORDER BY clause, or a fallback ordering when none is
// given. Fields come from the query string, so each one must be in the
// repo's sortable set before it is spliced into SQL.
func orderBy(ordering []core.DBOrdering, sortable map[string]bool, fallback string) (string, error) {
	if len(ordering) == 0 {
		return " ORDER BY " + fallback, nil
	}
	terms := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		if !sortable[ord.Field] {
			return "", core.NewValidationError(
				errUnknownOrdering,
				core.FieldError{Field: "ordering", Error: fmt.Sprintf("cannot order by %q", ord.Field)},
			)
		}
		terms = append(terms, ord.String())
	}
	return " ORDER BY " + strings.Join(terms, ", "), nil
}

// intsToInt64 converts choice indices for pq array binding.
func intsToInt64(ints []int) []int64 {
	if ints == nil {
		return nil
	}
	out := make([]int64, len(ints))
	for i, n := range ints {
		out[i] = int64(n)
	}
	return out
}

func int64sToInt(ints []int64) []int {
	if ints == nil {
		return nil
	}
	out := make([]int, len(ints))
	for i, n := range ints {
		out[i] = int(n)
	}
	return out
}
