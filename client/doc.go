/*
Client for the MyBusiness REST API, with credential lifecycle handling.

[APIClient] wraps an [http.Client] and exposes verb methods ([APIClient.Get], [APIClient.Post], [APIClient.Delete]) which encode query parameters and JSON bodies, and decode JSON responses as generic values. Every request funnels through a single dispatch routine which first makes sure a current access token is held: if the client has no [Credential], or the credential has expired, it runs a refresh exchange (or an initial password login) before sending the request. No network request is made when the client is constructed.

A [Credential] is an immutable access/refresh token pair with an absolute expiry. Callers who want sessions to survive a process restart register a [CredentialCallback], which receives every new credential, and later seed a client with [APIClient.SetCredential]. The sibling credstore package has ready-made storage backends for this.

Errors come in two kinds. When the remote service answers with a non-success status, the error is a [*RequestError] carrying the status code and the raw response body. When no response was received at all (connection refused, DNS, timeouts), the original transport error is returned unchanged. The service uses HTTP 404 to signal "no results" on list endpoints; the client does not special-case this, but [ErrNotFound] can be used with [errors.Is] to branch on it.

## Design Notes

Login and refresh exchanges are serialized on a client instance, and the credential field is guarded by a lock, so a client can be shared between goroutines. Concurrent requests which all find an expired credential will result in a single refresh exchange.

Query parameters are an ordered [Query] slice rather than a map, because encoding order is visible in request URLs.
*/
package client
