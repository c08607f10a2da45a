// Package calendar implements the Brazilian business-day oracle used to pick
// trading dates, count business days to maturity and generate date ranges.
//
// All dates are civil dates represented as midnight UTC time.Time values.
// The Brazil calendar covers weekends and the national holidays observed by
// B3 and ANBIMA; additional closures can be loaded from a CSV file.
package calendar
