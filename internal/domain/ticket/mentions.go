package ticket

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var mentionPattern = regexp.MustCompile(`^<@!?(\d{17,19})>$`)

// ResolveParticipants extracts user ids from whitespace separated mention
// tokens. Tokens that are not mentions are dropped. The result keeps first-seen
// order, has no duplicates and never contains author.
func ResolveParticipants(text string, author uint64) ([]uint64, error) {
	fields := strings.Fields(CleanText(text))
	if len(fields) == 0 {
		return nil, nil
	}

	seen := make(map[uint64]struct{}, len(fields))
	ids := make([]uint64, 0, len(fields))
	for _, field := range fields {
		match := mentionPattern.FindStringSubmatch(strings.Trim(field, quoteChars))
		if match == nil {
			continue
		}

		id, err := strconv.ParseUint(match[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrMalformedMention, field)
		}
		if id == author {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// Mention renders a user mention token.
func Mention(userID uint64) string {
	return "<@" + strconv.FormatUint(userID, 10) + ">"
}
