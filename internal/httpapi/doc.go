// Package httpapi exposes the Engine as JSON over HTTP.
//
// Every route is a POST under /v1 except GET /v1/me and GET /healthz. Routes that act on
// the caller's own identity (credentials, PIN, logout, me) sit behind middleware.Guard;
// /v1/admin/register additionally requires the admin role. Errors are returned as
// {"error": "<code>"} with a status derived from the authcore error taxonomy.
package httpapi
