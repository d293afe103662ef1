// Package handlers wires the HTTP routes onto the loader, the core service
// and the integrations, and renders their errors.
//
// Handlers return errors instead of writing failure responses themselves;
// ErrorHandler maps them onto status codes in one place.
package handlers
