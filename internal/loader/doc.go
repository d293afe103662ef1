// Package loader serves the farm-scoped collections behind the farm pages.
//
// Every call takes the principal and the farm from the URL. The loader
// rejects a missing farm or field id, lets the core service authorize the
// principal, drops records outside the requested calendar timeframe and
// wraps the result in a Page.
package loader
