package main

import "strings"

// withDriverParams appends the driver's connection parameters to a file
// data source. Parameters already present in dataSource come first.
func withDriverParams(dataSource, params string) string {
	if dataSource == "" || dataSource == ":memory:" || params == "" {
		return dataSource
	}
	if strings.Contains(dataSource, "?") {
		return dataSource + "&" + params
	}
	return dataSource + "?" + params
}
