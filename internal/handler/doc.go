// Package handler implements HTTP request handlers for the scenerepo API.
//
// The API is read-only: it browses databases and projects, lists branch
// history and serves revisions as scene graphs. Revisions are written
// through the service layer, not over HTTP.
//
// # Routes
//
//	GET /api/databases                                   database names, ?projects=true for a catalog
//	GET /api/databases/{db}/projects                     projects with a history
//	GET /api/databases/{db}/roles/{role}                 per-project rights of a role
//	GET /api/{db}/{project}/branches/{branch}/head       newest revision of a branch
//	GET /api/{db}/{project}/branches/{branch}/history    revisions newest first, ?limit=N
//	GET /api/{db}/{project}/branches/{branch}/scene      scene at the branch head
//	GET /api/{db}/{project}/revisions/{rev}              one revision
//	GET /api/{db}/{project}/revisions/{rev}/scene        scene as of a revision, ?verify=true replays deltas
//
// Scenes render as a node/edge view by default, or as a nested tree with
// ?format=tree. Branches are "master" or a UUID.
//
// # Response Format
//
// Success responses return JSON data with status 200. Error responses
// return JSON with {error, details} structure; missing databases, branches
// and revisions map to 404.
//
// # Middleware
//
// Chain composes Recover, CORS and Logger around the mux.
package handler
