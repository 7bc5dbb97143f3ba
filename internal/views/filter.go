package views

import "fmt"

// FilterKind selects which item query backs a Composer.
type FilterKind int

const (
	FilterAllItems FilterKind = iota
	FilterItemsForUser
)

// Filter is the selector held by a Composer. Filters are comparable.
type Filter struct {
	Kind   FilterKind
	UserID int64 // for FilterItemsForUser
}

// AllItems selects every visible item.
func AllItems() Filter {
	return Filter{Kind: FilterAllItems}
}

// ItemsForUser selects the items owned by userID.
func ItemsForUser(userID int64) Filter {
	return Filter{Kind: FilterItemsForUser, UserID: userID}
}

func (f Filter) String() string {
	switch f.Kind {
	case FilterAllItems:
		return "all"
	case FilterItemsForUser:
		return fmt.Sprintf("user:%d", f.UserID)
	default:
		return fmt.Sprintf("filter(%d)", int(f.Kind))
	}
}
