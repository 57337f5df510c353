// Package models contains the GORM persistence models of the billing ledger.
// Domain entities stay free of ORM tags; the mappers in this package convert
// between the two representations.
package models
