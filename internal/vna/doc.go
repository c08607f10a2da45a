// Package vna projects the daily VNA (valor nominal atualizado) of NTN-B
// bonds between monthly IPCA anniversaries.
//
// The official VNA is published for the 15th of each month. Between two
// anniversaries the value is carried forward with the month's inflation,
// pro rata by business days (vna_du) and by calendar days (vna_dc). The
// inflation used for a day is the released IPCA once it is out and the day
// is before the 15th, and the ANBIMA projection otherwise.
package vna
