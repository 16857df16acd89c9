// Package publish defines the contract for pushing a post to the external
// platform and ships two implementations: a dry-run gateway that only logs and
// an HTTP gateway that POSTs the post to a configured endpoint.
package publish
