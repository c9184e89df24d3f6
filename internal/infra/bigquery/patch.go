package bigquery

import (
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
)

// setClause builds the SET part of a DML UPDATE from the non-nil fields of a
// patch. Parameter names carry a set_ prefix so WHERE parameters never clash.
type setClause struct {
	prefix      string
	assignments []string
	parameters  []bigquery.QueryParameter
}

func newSetClause() *setClause {
	return newPrefixedSetClause("set_")
}

// newPrefixedSetClause uses a custom parameter prefix so two clauses can
// coexist in one statement.
func newPrefixedSetClause(prefix string) *setClause {
	return &setClause{prefix: prefix}
}

func (c *setClause) add(column string, value interface{}) {
	param := c.prefix + column
	c.assignments = append(c.assignments, fmt.Sprintf("%s = @%s", column, param))
	c.parameters = append(c.parameters, bigquery.QueryParameter{Name: param, Value: value})
}

func (c *setClause) empty() bool {
	return len(c.assignments) == 0
}

func (c *setClause) sql() string {
	return strings.Join(c.assignments, ", ")
}

func (c *setClause) params() []bigquery.QueryParameter {
	return append([]bigquery.QueryParameter(nil), c.parameters...)
}
