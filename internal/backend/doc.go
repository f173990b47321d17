// Package backend is the request/reply glue between the services facade
// and the middleman.
//
// Every request is a JSON Request envelope published on
// <prefix>/request/<kind>. The envelope carries a fresh request ID and a
// reply_to topic of the form <prefix>/reply/<client_id>/<request_id>; the
// middleman answers there with a Response. The client keeps one
// subscription to <prefix>/reply/<client_id>/+ and routes each reply to the
// exchange waiting for it.
//
// Exchange performs exactly one attempt. Retrying within a deadline is the
// caller's job (see package retry).
package backend
