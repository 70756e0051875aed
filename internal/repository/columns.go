// Package repository persists quotation rows in PostgreSQL.
package repository

import (
	"strconv"
	"strings"
)

// QuotationRowColumns defines the columns of the quotation_rows table in
// insert order. created_at is filled by the database.
var QuotationRowColumns = TableColumns{
	TableName: "quotation_rows",
	Columns: []string{
		"id",
		"user_id",
		"display_name",
		"product",
		"quantity",
		"unit",
		"city",
		"recorded_at",
	},
}

// TableColumns provides helper methods for generating SQL fragments.
type TableColumns struct {
	TableName string
	Columns   []string
}

// Select returns a comma-separated list of columns.
// Example: "id, user_id, display_name"
func (tc TableColumns) Select() string {
	return strings.Join(tc.Columns, ", ")
}

// Placeholders returns numbered placeholders for the columns.
// Example: "$1, $2, $3" for 3 columns
func (tc TableColumns) Placeholders() string {
	placeholders := make([]string, len(tc.Columns))
	for i := range tc.Columns {
		placeholders[i] = "$" + strconv.Itoa(i+1)
	}
	return strings.Join(placeholders, ", ")
}

// InsertQuery returns a full INSERT statement for the table.
func (tc TableColumns) InsertQuery() string {
	return "INSERT INTO " + tc.TableName + " (" + tc.Select() + ") VALUES (" + tc.Placeholders() + ")"
}

// Count returns the number of columns.
func (tc TableColumns) Count() int {
	return len(tc.Columns)
}
