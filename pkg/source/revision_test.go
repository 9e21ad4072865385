package source

import (
	"context"
	"errors"
	"testing"
)

type fakeLister struct {
	refs  *RefList
	err   error
	calls int
}

func (f *fakeLister) ListRefs(context.Context) (*RefList, error) {
	f.calls++
	return f.refs, f.err
}

func TestResolveRevision(t *testing.T) {
	tests := []struct {
		name    string
		lister  *fakeLister
		opts    ResolveOptions
		want    Revision
		wantErr bool
		calls   int
	}{
		{
			name:   "head with symref",
			lister: &fakeLister{refs: &RefList{Refs: []Ref{{"HEAD", shaMain}}, HeadTarget: "refs/heads/main"}},
			want:   Revision{SHA: shaMain, Ref: "refs/heads/main"},
			calls:  1,
		},
		{
			name:   "head without symref",
			lister: &fakeLister{refs: &RefList{Refs: []Ref{{"HEAD", shaMain}}}},
			want:   Revision{SHA: shaMain, Ref: "HEAD"},
			calls:  1,
		},
		{
			name:   "fallback branch",
			lister: &fakeLister{refs: &RefList{Refs: []Ref{{"refs/heads/trunk", shaTag}}}},
			opts:   ResolveOptions{FallbackRef: "refs/heads/trunk"},
			want:   Revision{SHA: shaTag, Ref: "refs/heads/trunk"},
			calls:  1,
		},
		{
			name:    "no head and no fallback",
			lister:  &fakeLister{refs: &RefList{Refs: []Ref{{"refs/heads/trunk", shaTag}}}},
			wantErr: true,
			calls:   1,
		},
		{
			name:    "listing fails",
			lister:  &fakeLister{err: errors.New("boom")},
			wantErr: true,
			calls:   1,
		},
		{
			name:   "pinned skips network",
			lister: &fakeLister{},
			opts:   ResolveOptions{Pinned: shaPeel},
			want:   Revision{SHA: shaPeel, Ref: "pinned"},
		},
		{
			name:    "pinned must be a commit id",
			lister:  &fakeLister{},
			opts:    ResolveOptions{Pinned: "main"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveRevision(context.Background(), tt.lister, tt.opts)
			if tt.wantErr {
				if !errors.Is(err, ErrStartupUnresolvable) {
					t.Fatalf("expected ErrStartupUnresolvable, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("ResolveRevision() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, expected %+v", got, tt.want)
			}
			if tt.lister.calls != tt.calls {
				t.Errorf("ListRefs called %d times, expected %d", tt.lister.calls, tt.calls)
			}
		})
	}
}

func TestRevision_String(t *testing.T) {
	r := Revision{SHA: shaMain, Ref: "refs/heads/main"}
	if r.Short() != "111111111111" {
		t.Errorf("Short() = %q", r.Short())
	}
	if r.String() != "refs/heads/main@111111111111" {
		t.Errorf("String() = %q", r.String())
	}
}
