package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
)

// StringArray stores a string slice portably.
// Values are written as a JSON array; reads also accept the PostgreSQL
// TEXT[] literal form ({a,b,"c d"}) for rows written by other tools.
type StringArray []string

// Scan implements the sql.Scanner interface for reading from the database.
func (a *StringArray) Scan(value interface{}) error {
	var raw string
	switch v := value.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		raw = string(v)
	case string:
		raw = v
	default:
		return errors.New("StringArray: unsupported scan type")
	}

	switch {
	case strings.HasPrefix(raw, "["):
		return json.Unmarshal([]byte(raw), a)
	case strings.HasPrefix(raw, "{") && strings.HasSuffix(raw, "}"):
		*a = parsePostgresArray(raw[1 : len(raw)-1])
		return nil
	default:
		*a = []string{raw}
		return nil
	}
}

// parsePostgresArray parses the inside of a PostgreSQL array literal,
// honouring double quotes and backslash escapes.
func parsePostgresArray(s string) []string {
	result := []string{}
	if s == "" {
		return result
	}

	var current strings.Builder
	inQuotes, escaped := false, false
	for _, r := range s {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			inQuotes = !inQuotes
		case r == ',' && !inQuotes:
			result = append(result, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	return append(result, current.String())
}

// Value implements the driver.Valuer interface for writing to the database.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// GormDataType returns the GORM data type hint.
func (StringArray) GormDataType() string {
	return "text"
}

// Contains reports whether s is in the array.
func (a StringArray) Contains(s string) bool {
	for _, v := range a {
		if v == s {
			return true
		}
	}
	return false
}
