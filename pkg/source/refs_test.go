package source

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

const (
	shaMain = "1111111111111111111111111111111111111111"
	shaTag  = "2222222222222222222222222222222222222222"
	shaPeel = "3333333333333333333333333333333333333333"
)

func TestParseRefAdvertisement(t *testing.T) {
	list := &RefList{Refs: []Ref{
		{Name: "HEAD", SHA: shaMain},
		{Name: "refs/heads/main", SHA: shaMain},
		{Name: "refs/tags/v1", SHA: shaTag},
		{Name: "refs/tags/v1^{}", SHA: shaPeel},
	}}
	body := EncodePktLines("git-upload-pack", list, "multi_ack symref=HEAD:refs/heads/main agent=git/2")

	got, err := ParseRefAdvertisement(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("ParseRefAdvertisement() error = %v", err)
	}
	if len(got.Refs) != 3 {
		t.Fatalf("expected 3 refs (peeled dropped), got %d: %+v", len(got.Refs), got.Refs)
	}
	if got.HeadTarget != "refs/heads/main" {
		t.Errorf("HeadTarget = %q, expected refs/heads/main", got.HeadTarget)
	}
	head, ok := got.Find("HEAD")
	if !ok || head.SHA != shaMain {
		t.Errorf("Find(HEAD) = %+v, %v", head, ok)
	}
	if _, ok := got.Find("refs/heads/missing"); ok {
		t.Error("Find should not report a missing ref")
	}
}

func TestParseRefAdvertisement_NoPreamble(t *testing.T) {
	list := &RefList{Refs: []Ref{{Name: "refs/heads/main", SHA: shaMain}}}
	got, err := ParseRefAdvertisement(bytes.NewReader(EncodePktLines("", list, "")))
	if err != nil {
		t.Fatalf("ParseRefAdvertisement() error = %v", err)
	}
	if len(got.Refs) != 1 || got.HeadTarget != "" {
		t.Errorf("unexpected result %+v", got)
	}
}

func TestParseRefAdvertisement_EmptyRepository(t *testing.T) {
	list := &RefList{Refs: []Ref{{Name: "capabilities^{}", SHA: strings.Repeat("0", 40)}}}
	got, err := ParseRefAdvertisement(bytes.NewReader(EncodePktLines("git-upload-pack", list, "agent=git/2")))
	if err != nil {
		t.Fatalf("ParseRefAdvertisement() error = %v", err)
	}
	if len(got.Refs) != 0 {
		t.Errorf("expected no refs, got %+v", got.Refs)
	}
}

func TestParseRefAdvertisement_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad length", "zzzzhello"},
		{"truncated payload", "0030abc"},
		{"truncated header", "00"},
		{"delimiter", "0001"},
		{"bad sha", "0010nothex HEAD\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRefAdvertisement(strings.NewReader(tt.body))
			if !errors.Is(err, ErrMalformedRefs) {
				t.Errorf("expected ErrMalformedRefs, got %v", err)
			}
		})
	}
}
