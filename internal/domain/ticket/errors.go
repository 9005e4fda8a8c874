package ticket

import "ticketbot/internal/errs"

var (
	ErrAuthorRequired   = errs.New(errs.KindValidation, "author is required")
	ErrTitleRequired    = errs.New(errs.KindValidation, "title is required")
	ErrTicketIDRequired = errs.New(errs.KindValidation, "ticket id is required")
	ErrInvalidTicketID  = errs.New(errs.KindValidation, "invalid ticket id")
	ErrMalformedMention = errs.New(errs.KindParse, "malformed user mention")
)
