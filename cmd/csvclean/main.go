// Package main provides the csvclean command-line tool.
//
// csvclean detects the encoding of CSV files, converts them to UTF-8 or
// ASCII, escapes control characters and writes a fully quoted copy.
//
// Usage:
//
//	csvclean normalize data.csv
//	csvclean normalize --ascii -o out/ a.csv b.csv
//	csvclean detect data.csv
//	csvclean history
//
// See --help for all available options.
package main

func main() {
	Execute()
}
