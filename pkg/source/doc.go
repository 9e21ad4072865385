/*
Package source talks to the remote git host that holds the documentation.

It exposes two operations: listing the repository's references (used once at
startup to pin a revision) and fetching the bytes of a single file at a given
revision. GitHubClient implements both against the git smart-HTTP reference
advertisement and the raw content host, and ResolveRevision picks the commit
that a server cycle will serve for its whole lifetime.
*/
package source
