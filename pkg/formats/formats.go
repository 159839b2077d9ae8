// Package formats provides parsers for the XML parts of a 3MF package: the
// package relationships and the model documents.
package formats

// Note: relationship parsing and model part discovery live in rels.go
// Note: transform attributes are parsed in transform.go
