// Package httputil provides the response envelope, request parsing and the
// common HTTP middleware shared by every handler package.
//
// Every response body has the shape
//
//	{"success": true, "message": "...", "data": ...}
//
// and list endpoints add a pagination object with currentPage, totalPages
// and resultCount.
//
// Handlers return errors wrapping one of the apierr sentinels and write them
// with WriteErr, which chooses the status code:
//
//	id, err := httputil.ParseUUIDParam(r, "id") // 422 when malformed
//	if err != nil {
//		httputil.WriteErr(w, r, err)
//		return
//	}
//
// Request bodies are decoded with DecodeAndValidate, which runs the
// go-playground/validator `validate` tags and reports failures as 422.
package httputil
