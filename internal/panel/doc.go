// Package panel serves the HTTP admin panel: a login page, a dashboard to
// add and run tasks, a JSON task list and a public status endpoint.
//
// Sessions are HS256 JWTs in an HttpOnly cookie. Flash messages travel in a
// second short-lived cookie and are cleared on the next render.
package panel
