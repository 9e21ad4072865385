package source

import (
	"context"
	"fmt"
)

// Revision is the commit a server cycle serves. It never changes once resolved.
type Revision struct {
	SHA string `json:"sha"`
	// Ref names what the SHA was taken from: a branch, "HEAD" or "pinned".
	Ref string `json:"ref"`
}

// Short returns an abbreviated SHA for log lines.
func (r Revision) Short() string {
	if len(r.SHA) > 12 {
		return r.SHA[:12]
	}
	return r.SHA
}

func (r Revision) String() string {
	if r.Ref == "" {
		return r.SHA
	}
	return r.Ref + "@" + r.Short()
}

// ResolveOptions tunes ResolveRevision.
type ResolveOptions struct {
	// Pinned, when set, is used verbatim and no network query is made.
	Pinned string
	// FallbackRef is used when the advertisement has no HEAD entry.
	FallbackRef string
}

// ResolveRevision selects the tip of the repository's primary branch. Every
// failure wraps ErrStartupUnresolvable.
func ResolveRevision(ctx context.Context, lister RefLister, opts ResolveOptions) (Revision, error) {
	if opts.Pinned != "" {
		if !isHexSHA(opts.Pinned) {
			return Revision{}, fmt.Errorf("%w: pinned revision %q is not a commit id", ErrStartupUnresolvable, opts.Pinned)
		}
		return Revision{SHA: opts.Pinned, Ref: "pinned"}, nil
	}

	refs, err := lister.ListRefs(ctx)
	if err != nil {
		return Revision{}, fmt.Errorf("%w: %w", ErrStartupUnresolvable, err)
	}

	if head, ok := refs.Find("HEAD"); ok {
		ref := refs.HeadTarget
		if ref == "" {
			ref = "HEAD"
		}
		return Revision{SHA: head.SHA, Ref: ref}, nil
	}

	if opts.FallbackRef != "" {
		if ref, ok := refs.Find(opts.FallbackRef); ok {
			return Revision{SHA: ref.SHA, Ref: ref.Name}, nil
		}
	}

	return Revision{}, fmt.Errorf("%w: no HEAD among %d refs", ErrStartupUnresolvable, len(refs.Refs))
}
