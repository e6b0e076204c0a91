// Package httputil provides shared JSON response/request helpers for the
// dashboard-facing handlers.
//
// Handlers use these instead of raw http.ResponseWriter calls so that error
// envelopes stay consistent and internal errors never reach clients.
package httputil
