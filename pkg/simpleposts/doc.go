// Package simpleposts provides a reusable library for publishing short text
// posts with pluggable repository, identity and image storage backends.
//
// The Service interface covers the post lifecycle: creation, paginated
// listing, owner-scoped listing, lookup, update, delete, an approximate
// count and full-text search. Mutations are gated on the authenticated
// principal owning the record, and every committed change is published to
// an in-process event bus so live observers can follow along.
//
// Ownership
//
// A post has exactly one owner, fixed at creation. Update and delete are
// performed by the repository as owner-conditional writes, so a request
// that raced with a concurrent delete observes ErrPostNotFound instead of
// mutating a record it no longer sees.
//
// Events
//
// Events are published only after the repository confirmed the write. The
// bus keeps an unbounded queue per listener; a slow observer never blocks a
// mutation, and a listener only sees events published after it subscribed.
package simpleposts
