package enums

import "fmt"

// DocType discriminates the document variants stored in the terminal replica.
type DocType string

const (
	DocTypeItem           DocType = "item"
	DocTypeCustomer       DocType = "customer"
	DocTypePriceListEntry DocType = "price_list_entry"
	DocTypePOSProfile     DocType = "pos_profile"
	DocTypeInvoice        DocType = "invoice"
)

var validDocTypes = []DocType{
	DocTypeItem,
	DocTypeCustomer,
	DocTypePriceListEntry,
	DocTypePOSProfile,
	DocTypeInvoice,
}

// String implements fmt.Stringer.
func (d DocType) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DocType.
func (d DocType) IsValid() bool {
	for _, candidate := range validDocTypes {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDocType converts raw input into a DocType.
func ParseDocType(value string) (DocType, error) {
	for _, candidate := range validDocTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid doc type %q", value)
}

// AllDocTypes returns every known document type, in census order.
func AllDocTypes() []DocType {
	out := make([]DocType, len(validDocTypes))
	copy(out, validDocTypes)
	return out
}
