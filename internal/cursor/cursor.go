package cursor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Cursor represents a pagination cursor with sort fields and last seen values
type Cursor struct {
	SortFields []string      `json:"sort_fields"`
	LastValues []interface{} `json:"last_values"`
	LastID     string        `json:"last_id"`
}

// Encode serializes the cursor to an opaque base64 string
func (c *Cursor) Encode() (string, error) {
	if len(c.SortFields) != len(c.LastValues) {
		return "", fmt.Errorf("sort fields and last values length mismatch")
	}

	jsonData, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}

	return base64.URLEncoding.EncodeToString(jsonData), nil
}

// Decode deserializes a cursor from an opaque base64 string
func Decode(encoded string) (*Cursor, error) {
	if encoded == "" {
		return nil, fmt.Errorf("empty cursor string")
	}

	jsonData, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	var c Cursor
	if err := json.Unmarshal(jsonData, &c); err != nil {
		return nil, fmt.Errorf("invalid cursor format: %w", err)
	}

	if len(c.SortFields) == 0 {
		return nil, fmt.Errorf("cursor missing sort fields")
	}
	if len(c.SortFields) != len(c.LastValues) {
		return nil, fmt.Errorf("cursor sort fields and values length mismatch")
	}
	if c.LastID == "" {
		return nil, fmt.Errorf("cursor missing last ID")
	}

	return &c, nil
}

// BuildWhereClause constructs a SQL WHERE clause for cursor-based pagination.
// For ORDER BY a DESC, b DESC, id DESC it generates:
//
//	((a < ?) OR (a = ? AND b < ?) OR (a = ? AND b = ? AND id < ?))
//
// When the only sort field is idField itself the tie-breaker is omitted.
func (c *Cursor) BuildWhereClause(sqlFields []string, descending []bool, idField string) (string, []interface{}, error) {
	if len(c.SortFields) != len(descending) || len(sqlFields) != len(descending) {
		return "", nil, fmt.Errorf("sort fields and descending flags length mismatch")
	}

	var params []interface{}
	var orConditions []string

	for i := range sqlFields {
		var andParts []string
		for j := 0; j < i; j++ {
			andParts = append(andParts, fmt.Sprintf("%s = ?", sqlFields[j]))
			params = append(params, c.LastValues[j])
		}
		andParts = append(andParts, fmt.Sprintf("%s %s ?", sqlFields[i], compareOp(descending[i])))
		params = append(params, c.LastValues[i])
		orConditions = append(orConditions, group(andParts))
	}

	if !(len(sqlFields) == 1 && sqlFields[0] == idField) {
		var andParts []string
		for j := range sqlFields {
			andParts = append(andParts, fmt.Sprintf("%s = ?", sqlFields[j]))
			params = append(params, c.LastValues[j])
		}
		// ID tie-breaker uses same direction as last sort field
		andParts = append(andParts, fmt.Sprintf("%s %s ?", idField, compareOp(descending[len(descending)-1])))
		params = append(params, c.LastID)
		orConditions = append(orConditions, group(andParts))
	}

	return "(" + strings.Join(orConditions, " OR ") + ")", params, nil
}

func compareOp(descending bool) string {
	if descending {
		return "<"
	}
	return ">"
}

func group(parts []string) string {
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

// NewCursor creates a new cursor from the last row values
func NewCursor(sortFields []string, lastValues []interface{}, lastID string) (*Cursor, error) {
	if len(sortFields) != len(lastValues) {
		return nil, fmt.Errorf("sort fields and last values length mismatch")
	}
	if lastID == "" {
		return nil, fmt.Errorf("last ID required")
	}

	return &Cursor{
		SortFields: sortFields,
		LastValues: lastValues,
		LastID:     lastID,
	}, nil
}

// BuildNextCursor encodes the cursor for the page following the given row.
func BuildNextCursor(sortFields []string, values []interface{}, lastID string) (string, error) {
	c, err := NewCursor(sortFields, values, lastID)
	if err != nil {
		return "", err
	}
	return c.Encode()
}

// ApplyOptions describes the ordering a paginated query uses.
type ApplyOptions struct {
	SortFields []string // column names, also stored in the cursor
	Descending []bool
	IDField    string // defaults to "external_id"
	Limit      int
}

// ApplyResult holds the SQL fragments for one page.
type ApplyResult struct {
	Cursor        *Cursor // nil on the first page
	WhereClause   string
	Params        []interface{}
	OrderBy       []string // "col DIR" terms, for query builders
	OrderByClause string
	LimitClause   string
	LimitParam    *int // limit+1 so callers can detect a further page
}

// Apply decodes encoded (when set) and builds the WHERE, ORDER BY and LIMIT
// fragments for the requested ordering.
func Apply(encoded string, opts ApplyOptions) (*ApplyResult, error) {
	if len(opts.SortFields) == 0 {
		return nil, fmt.Errorf("at least one sort field is required")
	}
	if len(opts.SortFields) != len(opts.Descending) {
		return nil, fmt.Errorf("sort fields and descending flags length mismatch")
	}
	sqlFields := opts.SortFields
	idField := opts.IDField
	if idField == "" {
		idField = "external_id"
	}

	res := &ApplyResult{}
	for i, f := range sqlFields {
		res.OrderBy = append(res.OrderBy, f+" "+direction(opts.Descending[i]))
	}
	if !(len(sqlFields) == 1 && sqlFields[0] == idField) {
		res.OrderBy = append(res.OrderBy, idField+" "+direction(opts.Descending[len(opts.Descending)-1]))
	}
	res.OrderByClause = "ORDER BY " + strings.Join(res.OrderBy, ", ")

	if encoded != "" {
		c, err := Decode(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor: %w", err)
		}
		if len(c.SortFields) != len(opts.SortFields) {
			return nil, fmt.Errorf("cursor sort field mismatch")
		}
		for i := range c.SortFields {
			if c.SortFields[i] != opts.SortFields[i] {
				return nil, fmt.Errorf("cursor sort field mismatch: %s != %s", c.SortFields[i], opts.SortFields[i])
			}
		}
		where, params, err := c.BuildWhereClause(sqlFields, opts.Descending, idField)
		if err != nil {
			return nil, err
		}
		res.Cursor = c
		res.WhereClause = where
		res.Params = params
	}

	if opts.Limit > 0 {
		limit := opts.Limit + 1
		res.LimitClause = "LIMIT ?"
		res.LimitParam = &limit
	}

	return res, nil
}

func direction(descending bool) string {
	if descending {
		return "DESC"
	}
	return "ASC"
}
