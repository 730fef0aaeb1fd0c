// Package rbcategory maps ISIS experiment (RB) numbers to their access route.
//
// The third and fourth digits of a seven character RB number encode how beam
// time was allocated. Anything that does not look like an RB number is
// classified as Uncategorized rather than rejected.
package rbcategory

import "fmt"

// Category is the access route of an experiment.
type Category string

const (
	DirectAccess          Category = "direct_access"
	RapidAccess           Category = "rapid_access"
	Commissioning         Category = "commissioning"
	Calibration           Category = "calibration"
	IndustrialAccess      Category = "industrial_access"
	InternationalPartners Category = "international_partners"
	XpressAccess          Category = "xpress_access"
	Uncategorized         Category = "uncategorized"
)

// RBNumberLength is the length of a well-formed RB number.
const RBNumberLength = 7

var all = []Category{
	DirectAccess,
	RapidAccess,
	Commissioning,
	Calibration,
	IndustrialAccess,
	InternationalPartners,
	XpressAccess,
	Uncategorized,
}

// All returns every category in a stable order.
func All() []Category {
	out := make([]Category, len(all))
	copy(out, all)
	return out
}

func (c Category) String() string {
	return string(c)
}

// Validate checks that c is one of the known categories.
func (c Category) Validate() error {
	for _, known := range all {
		if c == known {
			return nil
		}
	}
	return fmt.Errorf("invalid category: %q", string(c))
}

// ParseCategory converts the snake_case name back into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if err := c.Validate(); err != nil {
		return "", err
	}
	return c, nil
}

// Classify returns the category of an RB number. It never fails.
func Classify(rb string) Category {
	if len(rb) != RBNumberLength {
		return Uncategorized
	}

	third, fourth := rb[2], rb[3]

	switch {
	case third == '0':
		return DirectAccess
	case third == '1' || third == '2':
		return RapidAccess
	case third == '3' && fourth == '0':
		return Commissioning
	case third == '3' && fourth == '5':
		return Calibration
	case third == '5':
		return IndustrialAccess
	case third == '6':
		return InternationalPartners
	case third == '9':
		return XpressAccess
	default:
		return Uncategorized
	}
}
