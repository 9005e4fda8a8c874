package ticket

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"ticketbot/internal/errs"
)

func TestResolveParticipants(t *testing.T) {
	const author = 111111111111111111

	cases := []struct {
		name string
		text string
		want []uint64
	}{
		{
			name: "plain and nickname mentions",
			text: "<@123456789012345678> not-a-mention <@!234567890123456789>",
			want: []uint64{123456789012345678, 234567890123456789},
		},
		{
			name: "duplicates collapse in first-seen order",
			text: "<@!234567890123456789> <@123456789012345678> <@234567890123456789>",
			want: []uint64{234567890123456789, 123456789012345678},
		},
		{
			name: "author is excluded",
			text: "<@111111111111111111> <@123456789012345678>",
			want: []uint64{123456789012345678},
		},
		{
			name: "quoted input",
			text: `"<@123456789012345678> <@234567890123456789>"`,
			want: []uint64{123456789012345678, 234567890123456789},
		},
		{
			name: "wrong digit counts and role mentions are dropped",
			text: "<@1234> <@12345678901234567890> <@&123456789012345678> @someone",
			want: nil,
		},
		{
			name: "seventeen digit ids",
			text: "<@12345678901234567>",
			want: []uint64{12345678901234567},
		},
		{
			name: "empty",
			text: "   ",
			want: nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveParticipants(tc.text, author)
			if err != nil {
				t.Fatalf("ResolveParticipants() error = %v", err)
			}
			if len(got) == 0 && len(tc.want) == 0 {
				return
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("ResolveParticipants() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMalformedMentionIsParseError(t *testing.T) {
	err := ErrMalformedMention
	if !errors.Is(err, errs.ErrParse) {
		t.Fatalf("ErrMalformedMention kind = %v", errs.KindOf(err))
	}
}
