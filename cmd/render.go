package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	domainticket "ticketbot/internal/domain/ticket"
	ticketusecase "ticketbot/internal/usecase/ticket"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	openStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	closedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func renderSummaries(items []ticketusecase.Summary, kind listKind) string {
	if len(items) == 0 {
		switch kind {
		case listOpen:
			return "No open tickets."
		case listOrphans:
			return "No orphaned tickets."
		default:
			return "No tickets found."
		}
	}

	lines := make([]string, 0, len(items))
	for _, item := range items {
		line := titleStyle.Render(fmt.Sprintf("(#%d): %s", item.ID, item.Title))
		switch kind {
		case listAll:
			line += " " + renderStatus(item.IsOpen)
		case listOrphans:
			line += " " + warnStyle.Render(fmt.Sprintf("author=%d created=%s", item.Author, item.CreatedAt))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func renderStatus(open bool) string {
	if open {
		return openStyle.Render("open")
	}
	return closedStyle.Render("closed")
}

func renderTicket(t domainticket.Ticket) string {
	return domainticket.Summary(t, nil) + "\n" + closedStyle.Render(fmt.Sprintf("channel: <#%d>", t.ChannelID))
}
