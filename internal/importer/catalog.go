package importer

// FieldType represents the expected data type for a canonical field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEmail
	FieldPhone
	FieldDate
	FieldEnum
	FieldNumeric
	FieldList
)

// String returns the wire name of a field type, used in the catalog API.
func (t FieldType) String() string {
	switch t {
	case FieldText:
		return "text"
	case FieldEmail:
		return "email"
	case FieldPhone:
		return "phone"
	case FieldDate:
		return "date"
	case FieldEnum:
		return "enum"
	case FieldNumeric:
		return "numeric"
	case FieldList:
		return "list"
	default:
		return "unknown"
	}
}

// CanonicalField is one entry in the fixed target schema that CSV headers
// are mapped onto. Keys are unique within the catalog.
type CanonicalField struct {
	Key        string   // Stable identifier: "firstName"
	Label      string   // Display name, also used for template headers: "First Name"
	Required   bool     // Default required-field membership (overridable per import)
	Type       FieldType
	Synonyms   []string // Extra header names recognized by the mapper (compared normalized)
	EnumValues []string // Allowed values for FieldEnum, canonical casing
	Example    string   // Illustrative value for the generated template
}

// defaultCatalog is the member import schema. Declaration order matters: the
// field mapper claims fields in this order when several could match a header.
var defaultCatalog = []CanonicalField{
	{
		Key:      "firstName",
		Label:    "First Name",
		Required: true,
		Type:     FieldText,
		Synonyms: []string{"fname", "givenname", "first"},
		Example:  "John",
	},
	{
		Key:      "lastName",
		Label:    "Last Name",
		Required: true,
		Type:     FieldText,
		Synonyms: []string{"lname", "surname", "familyname", "last"},
		Example:  "Doe",
	},
	{
		Key:      "email",
		Label:    "Email",
		Required: true,
		Type:     FieldEmail,
		Synonyms: []string{"emailaddress", "mail", "e-mail"},
		Example:  "john.doe@example.com",
	},
	{
		Key:      "phone",
		Label:    "Phone",
		Type:     FieldPhone,
		Synonyms: []string{"phonenumber", "mobile", "cell", "cellphone", "telephone"},
		Example:  "(555) 123-4567",
	},
	{
		Key:      "dateOfBirth",
		Label:    "Date of Birth",
		Type:     FieldDate,
		Synonyms: []string{"dob", "birthdate", "birthday"},
		Example:  "1980-06-15",
	},
	{
		Key:        "gender",
		Label:      "Gender",
		Type:       FieldEnum,
		Synonyms:   []string{"sex"},
		EnumValues: []string{"male", "female", "other", "prefer not to say"},
		Example:    "Female",
	},
	{
		Key:      "address",
		Label:    "Address",
		Type:     FieldText,
		Synonyms: []string{"street", "streetaddress", "mailingaddress", "homeaddress"},
		Example:  "123 Main St, Springfield",
	},
	{
		Key:        "preferredContactMethod",
		Label:      "Preferred Contact Method",
		Type:       FieldEnum,
		Synonyms:   []string{"contactmethod", "contactpreference", "preferredcontact"},
		EnumValues: []string{"email", "phone", "sms", "mail"},
		Example:    "Email",
	},
	{
		Key:      "ministryInterests",
		Label:    "Ministry Interests",
		Type:     FieldList,
		Synonyms: []string{"ministries", "interests", "ministryinterest"},
		Example:  "Choir; Youth",
	},
	{
		Key:      "pledgeAmount",
		Label:    "Pledge Amount",
		Type:     FieldNumeric,
		Synonyms: []string{"pledge", "annualpledge", "givingamount"},
		Example:  "1200.00",
	},
}

// Catalog returns a copy of the member field catalog. The returned slice is
// safe for callers to reorder or annotate.
func Catalog() []CanonicalField {
	out := make([]CanonicalField, len(defaultCatalog))
	copy(out, defaultCatalog)
	return out
}

// DefaultRequiredKeys returns the keys marked required in the catalog, in
// declaration order.
func DefaultRequiredKeys() []string {
	var keys []string
	for _, f := range defaultCatalog {
		if f.Required {
			keys = append(keys, f.Key)
		}
	}
	return keys
}

// fieldByKey looks up a catalog entry by canonical key.
func fieldByKey(catalog []CanonicalField, key string) (CanonicalField, bool) {
	for _, f := range catalog {
		if f.Key == key {
			return f, true
		}
	}
	return CanonicalField{}, false
}
