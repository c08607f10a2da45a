// Package provider holds parsing helpers shared by the market data
// providers in its subpackages: Latin-1 decoding, Brazilian number and date
// formats, and HTML table extraction.
package provider
