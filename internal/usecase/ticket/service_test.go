package ticket

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	domainticket "ticketbot/internal/domain/ticket"
	"ticketbot/internal/errs"
	"ticketbot/internal/infrastructure/persistence/relational/model"
	"ticketbot/internal/infrastructure/persistence/relational/repository"
	"ticketbot/internal/ports"
)

const (
	authorID    uint64 = 123456789012345678
	otherID     uint64 = 234567890123456789
	moderatorID uint64 = 345678901234567890
)

type createCall struct {
	name       string
	category   domainticket.Category
	overwrites []domainticket.Overwrite
}

type editCall struct {
	channelID  uint64
	category   domainticket.Category
	overwrites []domainticket.Overwrite
}

type fakeProvisioner struct {
	mu sync.Mutex

	nextChannel uint64
	creates     []createCall
	edits       []editCall
	posts       []ports.ChannelMessage

	createErr error
	editErr   error
	postErr   error
	hang      bool
	// beforeCreate runs ahead of the create, outside the lock.
	beforeCreate func()
}

func (f *fakeProvisioner) Create(ctx context.Context, name string, category domainticket.Category, overwrites []domainticket.Overwrite) (uint64, error) {
	if f.hang {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if f.beforeCreate != nil {
		f.beforeCreate()
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.creates = append(f.creates, createCall{name: name, category: category, overwrites: overwrites})
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.nextChannel++
	return 800000000000000000 + f.nextChannel, nil
}

func (f *fakeProvisioner) EditPermissionsAndCategory(_ context.Context, channelID uint64, category domainticket.Category, overwrites []domainticket.Overwrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.edits = append(f.edits, editCall{channelID: channelID, category: category, overwrites: overwrites})
	return f.editErr
}

func (f *fakeProvisioner) Post(_ context.Context, _ uint64, msg ports.ChannelMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.posts = append(f.posts, msg)
	return f.postErr
}

func (f *fakeProvisioner) editCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.edits)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []ports.TicketEvent
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, event ports.TicketEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, event)
	return f.err
}

// failingChannelRepo fails every SetChannelID after the store accepted the
// ticket.
type failingChannelRepo struct {
	*repository.TicketRepository
	err error
}

func (r failingChannelRepo) SetChannelID(context.Context, uint64, uint64) error {
	return r.err
}

type fixture struct {
	svc       *Service
	repo      *repository.TicketRepository
	prov      *fakeProvisioner
	publisher *fakePublisher
}

func newFixture(t *testing.T, opts Options) fixture {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "tickets.sqlite")
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	if opts.Now == nil {
		fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		opts.Now = func() time.Time { return fixed }
	}

	repo := repository.NewTicketRepository(db)
	prov := &fakeProvisioner{}
	publisher := &fakePublisher{}
	return fixture{
		svc:       NewService(repo, prov, publisher, opts),
		repo:      repo,
		prov:      prov,
		publisher: publisher,
	}
}

func (f fixture) open(t *testing.T, title string) OpenTicketResult {
	t.Helper()

	result, err := f.svc.OpenTicket(context.Background(), OpenTicketInput{
		Author:      authorID,
		Title:       title,
		Description: "printer on fire",
	})
	if err != nil {
		t.Fatalf("OpenTicket(%q) error = %v", title, err)
	}
	return result
}

func TestOpenTicketProvisionsAndRecordsChannel(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	result, err := f.svc.OpenTicket(ctx, OpenTicketInput{
		Author:          authorID,
		Title:           `"Need help"`,
		Description:     "  'printer on fire' ",
		RelatedMentions: "<@234567890123456789> <@!123456789012345678> <@234567890123456789>",
	})
	if err != nil {
		t.Fatalf("OpenTicket() error = %v", err)
	}
	if result.TicketID == 0 || result.ChannelID == 0 {
		t.Fatalf("OpenTicket() = %+v", result)
	}
	if diff := cmp.Diff([]uint64{otherID}, result.Participants); diff != "" {
		t.Fatalf("participants mismatch (-want +got):\n%s", diff)
	}

	record, err := f.repo.GetByID(ctx, result.TicketID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if record.Title != "Need help" || record.Description != "printer on fire" || !record.IsOpen || record.ChannelID != result.ChannelID {
		t.Fatalf("stored ticket = %+v", record)
	}
	if record.CreatedAt != "2024-05-01T12:00:00Z" {
		t.Fatalf("created_at = %q", record.CreatedAt)
	}

	if len(f.prov.creates) != 1 {
		t.Fatalf("creates = %d", len(f.prov.creates))
	}
	create := f.prov.creates[0]
	if create.category != domainticket.CategoryOpen || create.name != domainticket.ChannelName(result.TicketID, "Need help") {
		t.Fatalf("create = %+v", create)
	}
	if diff := cmp.Diff(domainticket.OpenOverwrites(authorID, []uint64{otherID}), create.overwrites); diff != "" {
		t.Fatalf("overwrites mismatch (-want +got):\n%s", diff)
	}

	if len(f.prov.posts) != 1 || !f.prov.posts[0].MentionModerators {
		t.Fatalf("posts = %+v", f.prov.posts)
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0].Type != ports.TicketOpened {
		t.Fatalf("events = %+v", f.publisher.events)
	}
}

func TestOpenTicketRejectsQuoteOnlyTitleWithoutInsert(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.OpenTicket(ctx, OpenTicketInput{Author: authorID, Title: ` "" '' `})
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("OpenTicket() error = %v, want validation error", err)
	}

	records, err := f.repo.List(ctx, false)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 0 || len(f.prov.creates) != 0 {
		t.Fatalf("records = %d creates = %d, want nothing stored", len(records), len(f.prov.creates))
	}
}

func TestOpenTicketDropsNonMentionTokens(t *testing.T) {
	f := newFixture(t, Options{})

	result, err := f.svc.OpenTicket(context.Background(), OpenTicketInput{
		Author:          authorID,
		Title:           "help",
		RelatedMentions: "@bob <@123> not-a-mention",
	})
	if err != nil {
		t.Fatalf("OpenTicket() error = %v", err)
	}
	if len(result.Participants) != 0 {
		t.Fatalf("participants = %v, want none", result.Participants)
	}
	if diff := cmp.Diff(domainticket.OpenOverwrites(authorID, nil), f.prov.creates[0].overwrites); diff != "" {
		t.Fatalf("overwrites mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenTicketProvisionFailureLeavesOrphan(t *testing.T) {
	f := newFixture(t, Options{})
	f.prov.createErr = errors.New("missing permissions")
	ctx := context.Background()

	result, err := f.svc.OpenTicket(ctx, OpenTicketInput{Author: authorID, Title: "help"})
	if !errors.Is(err, errs.ErrProvision) {
		t.Fatalf("OpenTicket() error = %v, want provision error", err)
	}
	if result.TicketID == 0 || result.ChannelID != 0 {
		t.Fatalf("partial result = %+v", result)
	}

	orphans, err := f.svc.ListOrphanedTickets(ctx, true)
	if err != nil {
		t.Fatalf("ListOrphanedTickets() error = %v", err)
	}
	if len(orphans) != 1 || orphans[0].ID != result.TicketID {
		t.Fatalf("orphans = %+v", orphans)
	}

	open, err := f.svc.ListOpenTickets(ctx, true)
	if err != nil {
		t.Fatalf("ListOpenTickets() error = %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("open = %+v, want orphan excluded", open)
	}

	if _, err := f.svc.ShowTicket(ctx, authorID, result.TicketID); !errors.Is(err, errs.ErrInconsistentState) {
		t.Fatalf("ShowTicket(orphan) error = %v, want inconsistent state", err)
	}
	if len(f.publisher.events) != 0 {
		t.Fatalf("events = %+v, want none for orphan", f.publisher.events)
	}
}

func TestOpenTicketRecordChannelFailureIsStoreError(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	svc := NewService(failingChannelRepo{TicketRepository: f.repo, err: errors.New("database is locked")}, f.prov, f.publisher, Options{})

	result, err := svc.OpenTicket(ctx, OpenTicketInput{Author: authorID, Title: "help"})
	if !errors.Is(err, errs.ErrStore) {
		t.Fatalf("OpenTicket() error = %v, want store error", err)
	}
	if result.TicketID == 0 || result.ChannelID == 0 {
		t.Fatalf("partial result = %+v, want ticket and channel ids", result)
	}
	if len(f.prov.posts) != 0 || len(f.publisher.events) != 0 {
		t.Fatalf("posts = %d events = %d, want none", len(f.prov.posts), len(f.publisher.events))
	}

	orphans, err := svc.ListOrphanedTickets(ctx, true)
	if err != nil {
		t.Fatalf("ListOrphanedTickets() error = %v", err)
	}
	if len(orphans) != 1 || orphans[0].ID != result.TicketID {
		t.Fatalf("orphans = %+v", orphans)
	}
}

func TestOpenTicketClosedDuringProvisioningRestrictsChannel(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	var closeOutcome CloseOutcome
	var closeErr error
	f.prov.beforeCreate = func() {
		orphans, err := f.repo.ListOrphans(ctx)
		if err != nil || len(orphans) != 1 {
			t.Errorf("ListOrphans() = %+v, %v", orphans, err)
			return
		}
		closeOutcome, closeErr = f.svc.CloseTicket(ctx, CloseTicketInput{
			Actor:       moderatorID,
			IsModerator: true,
			TicketID:    orphans[0].ID,
		})
	}

	result, err := f.svc.OpenTicket(ctx, OpenTicketInput{
		Author:          authorID,
		Title:           "raced",
		RelatedMentions: "<@234567890123456789>",
	})
	if closeOutcome != CloseClosed || !errors.Is(closeErr, errs.ErrInconsistentState) {
		t.Fatalf("CloseTicket() during open = %q, %v", closeOutcome, closeErr)
	}
	if !errors.Is(err, errs.ErrInconsistentState) {
		t.Fatalf("OpenTicket() error = %v, want inconsistent state", err)
	}
	if result.ChannelID == 0 {
		t.Fatalf("result = %+v, want channel id", result)
	}

	record, err := f.repo.GetByID(ctx, result.TicketID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if record.IsOpen || record.ChannelID != result.ChannelID {
		t.Fatalf("stored ticket = %+v, want closed with channel recorded", record)
	}

	if f.prov.editCount() != 1 {
		t.Fatalf("edits = %d, want 1", f.prov.editCount())
	}
	edit := f.prov.edits[0]
	if edit.channelID != result.ChannelID || edit.category != domainticket.CategoryClosed {
		t.Fatalf("edit = %+v", edit)
	}
	if diff := cmp.Diff(domainticket.ClosedOverwrites(), edit.overwrites); diff != "" {
		t.Fatalf("overwrites mismatch (-want +got):\n%s", diff)
	}
	if len(f.prov.posts) != 0 || len(f.publisher.events) != 0 {
		t.Fatalf("posts = %d events = %d, want none", len(f.prov.posts), len(f.publisher.events))
	}
}

func TestOpenTicketHonorsProvisionTimeout(t *testing.T) {
	f := newFixture(t, Options{ProvisionTimeout: 20 * time.Millisecond})
	f.prov.hang = true

	_, err := f.svc.OpenTicket(context.Background(), OpenTicketInput{Author: authorID, Title: "slow"})
	if !errors.Is(err, errs.ErrProvision) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("OpenTicket() error = %v, want provision timeout", err)
	}
}

func TestOpenTicketSurvivesPostAndPublishFailures(t *testing.T) {
	f := newFixture(t, Options{})
	f.prov.postErr = errors.New("cannot send")
	f.publisher.err = errors.New("nats down")

	result, err := f.svc.OpenTicket(context.Background(), OpenTicketInput{Author: authorID, Title: "help"})
	if err != nil {
		t.Fatalf("OpenTicket() error = %v", err)
	}
	if result.ChannelID == 0 {
		t.Fatalf("result = %+v", result)
	}
}

func TestCloseTicketIsIdempotent(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	opened := f.open(t, "close me")
	input := CloseTicketInput{Actor: moderatorID, IsModerator: true, TicketID: opened.TicketID}

	outcome, err := f.svc.CloseTicket(ctx, input)
	if err != nil || outcome != CloseClosed {
		t.Fatalf("first CloseTicket() = %q, %v", outcome, err)
	}
	outcome, err = f.svc.CloseTicket(ctx, input)
	if err != nil || outcome != CloseAlreadyClosed {
		t.Fatalf("second CloseTicket() = %q, %v", outcome, err)
	}

	if f.prov.editCount() != 1 {
		t.Fatalf("edits = %d, want 1", f.prov.editCount())
	}
	edit := f.prov.edits[0]
	if edit.channelID != opened.ChannelID || edit.category != domainticket.CategoryClosed {
		t.Fatalf("edit = %+v", edit)
	}
	if diff := cmp.Diff(domainticket.ClosedOverwrites(), edit.overwrites); diff != "" {
		t.Fatalf("overwrites mismatch (-want +got):\n%s", diff)
	}

	record, err := f.repo.GetByID(ctx, opened.TicketID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if record.IsOpen {
		t.Fatal("ticket still open")
	}
}

func TestCloseTicketConcurrentCallersProvisionOnce(t *testing.T) {
	f := newFixture(t, Options{})
	opened := f.open(t, "race")

	const callers = 8
	outcomes := make([]CloseOutcome, callers)
	var g errgroup.Group
	for i := range callers {
		g.Go(func() error {
			outcome, err := f.svc.CloseTicket(context.Background(), CloseTicketInput{
				Actor:       moderatorID,
				IsModerator: true,
				TicketID:    opened.TicketID,
			})
			outcomes[i] = outcome
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("CloseTicket() error = %v", err)
	}

	closed := 0
	for _, outcome := range outcomes {
		switch outcome {
		case CloseClosed:
			closed++
		case CloseAlreadyClosed:
		default:
			t.Fatalf("unexpected outcome %q", outcome)
		}
	}
	if closed != 1 || f.prov.editCount() != 1 {
		t.Fatalf("closed = %d edits = %d, want exactly one", closed, f.prov.editCount())
	}
}

func TestCloseTicketOutcomesAndErrors(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	opened := f.open(t, "help")

	if _, err := f.svc.CloseTicket(ctx, CloseTicketInput{Actor: authorID, TicketID: opened.TicketID}); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("CloseTicket(non-moderator) error = %v", err)
	}
	record, err := f.repo.GetByID(ctx, opened.TicketID)
	if err != nil || !record.IsOpen {
		t.Fatalf("ticket after rejected close = %+v, %v", record, err)
	}

	outcome, err := f.svc.CloseTicket(ctx, CloseTicketInput{Actor: moderatorID, IsModerator: true, TicketID: 9999})
	if err != nil || outcome != CloseNotFound {
		t.Fatalf("CloseTicket(unknown) = %q, %v", outcome, err)
	}

	if _, err := f.svc.CloseTicket(ctx, CloseTicketInput{Actor: moderatorID, IsModerator: true}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("CloseTicket(0) error = %v", err)
	}
}

func TestCloseTicketProvisionFailureKeepsClosedState(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	opened := f.open(t, "help")
	f.prov.editErr = errors.New("channel deleted")

	outcome, err := f.svc.CloseTicket(ctx, CloseTicketInput{Actor: moderatorID, IsModerator: true, TicketID: opened.TicketID})
	if outcome != CloseClosed || !errors.Is(err, errs.ErrProvision) {
		t.Fatalf("CloseTicket() = %q, %v, want closed with provision error", outcome, err)
	}
	record, err := f.repo.GetByID(ctx, opened.TicketID)
	if err != nil || record.IsOpen {
		t.Fatalf("ticket = %+v, %v, want closed", record, err)
	}
	for _, event := range f.publisher.events {
		if event.Type == ports.TicketClosed {
			t.Fatal("closed event published despite provision failure")
		}
	}
}

func TestCloseOrphanedTicketIsInconsistent(t *testing.T) {
	f := newFixture(t, Options{})
	f.prov.createErr = errors.New("boom")
	ctx := context.Background()

	result, _ := f.svc.OpenTicket(ctx, OpenTicketInput{Author: authorID, Title: "orphan"})
	outcome, err := f.svc.CloseTicket(ctx, CloseTicketInput{Actor: moderatorID, IsModerator: true, TicketID: result.TicketID})
	if outcome != CloseClosed || !errors.Is(err, errs.ErrInconsistentState) {
		t.Fatalf("CloseTicket(orphan) = %q, %v", outcome, err)
	}
	if f.prov.editCount() != 0 {
		t.Fatalf("edits = %d, want none", f.prov.editCount())
	}
}

func TestShowTicketAuthorOnly(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	opened := f.open(t, "mine")

	got, err := f.svc.ShowTicket(ctx, authorID, opened.TicketID)
	if err != nil {
		t.Fatalf("ShowTicket(author) error = %v", err)
	}
	if got.ID != opened.TicketID || got.Title != "mine" || got.Phase() != domainticket.PhaseOpen {
		t.Fatalf("ShowTicket() = %+v", got)
	}

	if _, err := f.svc.ShowTicket(ctx, moderatorID, opened.TicketID); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("ShowTicket(moderator) error = %v, want forbidden", err)
	}
	if _, err := f.svc.ShowTicket(ctx, authorID, 4242); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("ShowTicket(unknown) error = %v, want not found", err)
	}
}

func TestListTicketsFiltersAndRequiresModerator(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	ids := make([]uint64, 0, 5)
	for _, title := range []string{"a", "b", "c", "d", "e"} {
		ids = append(ids, f.open(t, title).TicketID)
	}
	for _, id := range []uint64{ids[0], ids[3]} {
		if _, err := f.svc.CloseTicket(ctx, CloseTicketInput{Actor: moderatorID, IsModerator: true, TicketID: id}); err != nil {
			t.Fatalf("CloseTicket(%d) error = %v", id, err)
		}
	}

	open, err := f.svc.ListOpenTickets(ctx, true)
	if err != nil {
		t.Fatalf("ListOpenTickets() error = %v", err)
	}
	gotOpen := make([]uint64, 0, len(open))
	for _, s := range open {
		gotOpen = append(gotOpen, s.ID)
	}
	if diff := cmp.Diff([]uint64{ids[1], ids[2], ids[4]}, gotOpen); diff != "" {
		t.Fatalf("open ids mismatch (-want +got):\n%s", diff)
	}

	all, err := f.svc.ListAllTickets(ctx, true)
	if err != nil {
		t.Fatalf("ListAllTickets() error = %v", err)
	}
	if len(all) != 5 || all[0].IsOpen || !all[1].IsOpen {
		t.Fatalf("ListAllTickets() = %+v", all)
	}

	if _, err := f.svc.ListOpenTickets(ctx, false); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("ListOpenTickets(non-moderator) error = %v", err)
	}
	if _, err := f.svc.ListAllTickets(ctx, false); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("ListAllTickets(non-moderator) error = %v", err)
	}
	if _, err := f.svc.ListOrphanedTickets(ctx, false); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("ListOrphanedTickets(non-moderator) error = %v", err)
	}
}
