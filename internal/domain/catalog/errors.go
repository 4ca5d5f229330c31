package catalog

import "errors"

var ErrNotFound = errors.New("catalog: not found")

var ErrConflict = errors.New("catalog: conflict")

// ErrUnknownCity is returned when the normalizer cannot match a city within
// the Levenshtein ceiling. Candidates carrying it stay in the store with a
// null city reference.
var ErrUnknownCity = errors.New("catalog: unknown city")
