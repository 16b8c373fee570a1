// Package acl is the anti-corruption layer between the quote book and the
// remote quote source.
//
// The remote speaks its own JSON. Nothing from it reaches the domain
// untranslated:
//
//   - wire DTOs are unexported and live next to the adapter that reads them
//   - [MapHTTPError] turns statuses, error bodies and transport failures into
//     domain errors
//   - translated records are plain [domain.Quote] values; validation against
//     the list invariant happens later, in the sync verify stage
//
// Status mapping:
//   - 404 → [domain.ErrNotFound]
//   - 409 → [domain.ErrConflict]
//   - 400/422 → [domain.ErrValidation]
//   - 401/403 → [domain.ErrForbidden]
//   - 429, 5xx, circuit open, retries exhausted → [domain.ErrUnavailable]
package acl
