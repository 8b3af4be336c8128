// Package server implements the authorization transaction engine.
//
// A login moves through three operations:
//
//	Begin     validate the request, store it as pending under its state
//	Approve   take the pending request, check the identity, store a grant
//	          keyed by the code challenge
//	Exchange  authenticate the client, take the grant, check the redirect
//	          URI and issue a signed token
//
// Every take is single-use and every stored entry expires, so each state and
// each code can be redeemed at most once and only for a bounded time.
//
// Failures are always *Error values drawn from a closed set of codes; see
// errors.go. Backend failures surface as server_error without their details.
//
// Example usage:
//
//	store := memory.New()
//	defer store.Stop()
//
//	srv, err := server.New(store, dir, &server.Config{
//		Client: server.ClientConfig{
//			ID:          "client-id",
//			Secret:      "client-secret",
//			RedirectURI: "http://app/api/redirect",
//		},
//		TokenSecret: []byte("secret"),
//	}, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
package server
