// Package core is the FDM data layer: farms, fields, cultivations,
// fertilizers, fertilizer applications and soil analyses, plus the
// principals that own them.
//
// Service is the only way handlers reach farm data. Each call names the
// acting principal and is checked against that principal's role on the
// farm before the Repository is touched:
//
//	owner       read, write, share
//	advisor     read, write
//	researcher  read
//
// A farm the principal holds no role on is reported as ErrPermissionDenied
// whether or not it exists. Fields and the records under them are looked up
// by id, so on such a farm they are reported as ErrNotFound, the same as a
// missing id.
//
// PostgresRepository stores everything in the fdm and fdm_authn schemas;
// Migrate applies the embedded goose migrations. Tests use the in-memory
// repository in coretest.
package core
