// Package httputil provides the JSON response helpers and middleware used by
// the admin HTTP server.
//
// # Responses
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteError(w, err) // status derived from the models error kind
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestID,
//		httputil.Logging(logger),
//		httputil.Recovery(logger),
//	)(router)
package httputil
