package property

import (
	"regexp"
	"strings"
)

// FindPropertiesPath is the bare listing path of the finder page.
const FindPropertiesPath = "/find-properties"

var opaIDPattern = regexp.MustCompile(`^[0-9]{8,9}$`)

// ValidOPAID reports whether id has the shape of a Philadelphia OPA account
// number: 8 or 9 digits.
func ValidOPAID(id string) bool {
	return opaIDPattern.MatchString(id)
}

// Path returns the deep link for a property, or the bare listing path when id
// is empty.
func Path(id string) string {
	if id == "" {
		return FindPropertiesPath
	}
	return FindPropertiesPath + "/" + id
}

// PhotoURL builds the street photo location for a property. Nothing checks
// that the object exists.
func PhotoURL(bucketBase, id string) string {
	return strings.TrimRight(bucketBase, "/") + "/" + id + ".jpg"
}
