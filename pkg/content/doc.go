/*
Package content turns logical content paths into text at a pinned revision.

A Fetcher addresses files in the content source by prefix, logical path and
extension, always at the one revision it was built with. A Cache sits in
front of it and guarantees that, for any key, concurrent first requests share
a single in-flight fetch and every later request sees that fetch's outcome.
What happens after a failed fetch is governed by a FailurePolicy.

Both types are safe for concurrent use and live for one server cycle; a
restart builds fresh ones against a newly resolved revision.
*/
package content
