package taxonomy

import (
	"regexp"

	"github.com/cohesivestack/valgo"
	"github.com/theapemachine/memoria/pkg/errors"
)

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// ValidateName checks the shape of a category name, not its uniqueness.
func ValidateName(name string) error {
	return errors.FromValgo(valgo.Is(
		valgo.String(name, "name").
			OfLengthBetween(2, 30, "category names must be between 2 and 30 characters long").
			MatchingTo(namePattern, "category names must start with a lowercase letter and contain only lowercase letters, digits and hyphens"),
	))
}
