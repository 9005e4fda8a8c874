package ticket

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxChannelName is the platform limit on channel names, in runes.
const MaxChannelName = 100

func ChannelName(id uint64, title string) string {
	name := fmt.Sprintf("(#%d): %s", id, title)
	if utf8.RuneCountInString(name) <= MaxChannelName {
		return name
	}
	runes := []rune(name)
	return strings.TrimSpace(string(runes[:MaxChannelName]))
}

// Summary renders the message posted into a freshly opened ticket channel.
func Summary(t Ticket, participants []uint64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### (#%d): __%s__\n", t.ID, t.Title)
	fmt.Fprintf(&b, "Author: %s", Mention(t.Author))
	if len(participants) > 0 {
		b.WriteString("\nRelated Users:")
		for _, id := range participants {
			b.WriteString(" ")
			b.WriteString(Mention(id))
		}
	}
	fmt.Fprintf(&b, "\n\nDescription:\n%s\n\nopen: %s", t.Description, statusEmoji(t.IsOpen))
	return b.String()
}

func statusEmoji(open bool) string {
	if open {
		return ":white_check_mark:"
	}
	return ":x:"
}
