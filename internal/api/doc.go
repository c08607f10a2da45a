// Package api provides the HTTP client shared by the market data providers.
//
// Providers are public, unauthenticated endpoints:
//   - B3 boletim: https://www2.bmf.com.br/pages/portal/bmfbovespa/boletim1
//   - ANBIMA: https://www.anbima.com.br
//   - IBGE services: https://servicodados.ibge.gov.br/api/v3
//   - IBGE SIDRA: https://apisidra.ibge.gov.br
//   - BCB DEMAB: https://www4.bcb.gov.br/pom/demab/negociacoes/download
//
// The client retries 5xx and 429 responses with jittered exponential backoff
// and optionally paces requests with a token bucket.
package api
