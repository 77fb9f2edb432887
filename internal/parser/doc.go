// Package parser extracts a request payload before a route handler runs.
//
// The default parser decodes the body by media type:
//
//	application/json                  -> any (numbers as json.Number)
//	application/yaml, text/yaml, ...  -> any
//	application/x-www-form-urlencoded -> url.Values
//	text/*                            -> string
//	anything else                     -> []byte
//
// A missing or empty body is never an error; it yields an empty Payload.
package parser
