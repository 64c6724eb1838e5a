// Package tests holds the mocks, fixtures, integration and end-to-end API
// tests for the attachment service.
package tests
