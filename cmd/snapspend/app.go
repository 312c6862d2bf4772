package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/snapspend-backend/internal/analytics/query"
	"github.com/angelmondragon/snapspend-backend/pkg/apiclient"
	"github.com/angelmondragon/snapspend-backend/pkg/localstore"
	"github.com/angelmondragon/snapspend-backend/pkg/logger"
	"github.com/angelmondragon/snapspend-backend/pkg/receipt"
	"github.com/angelmondragon/snapspend-backend/pkg/sessionstate"
)

const localTopStores = 5

var (
	errNotSignedIn     = errors.New("not signed in: run `snapspend guest`, `snapspend login` or `snapspend register`")
	errAlreadySignedIn = errors.New("already signed in: run `snapspend logout` first")
)

type backend interface {
	Register(ctx context.Context, email, password string) (*apiclient.Session, error)
	Login(ctx context.Context, email, password string) (*apiclient.Session, error)
	Guest(ctx context.Context) (*apiclient.Session, error)
	Logout(ctx context.Context) error
	ListReceipts(ctx context.Context, opts apiclient.ListOptions) (*apiclient.ReceiptPage, error)
	CreateReceipt(ctx context.Context, r receipt.Receipt) (*receipt.Receipt, error)
	ScanReceipt(ctx context.Context, image []byte, fileName, mimeType string, save bool) (*receipt.Receipt, error)
	Summary(ctx context.Context, from, to *time.Time) (*apiclient.Summary, error)
}

type resolver interface {
	Resolve(ctx context.Context, state *sessionstate.State) (sessionstate.Resolution, *sessionstate.Refinement)
}

// app is the composition point of the client: one session state, resolved
// once per invocation, decides whether receipts go to the backend or to the
// device store.
type app struct {
	out        io.Writer
	logg       *logger.Logger
	store      *localstore.Store
	api        backend
	resolver   resolver
	state      *sessionstate.State
	refinement *sessionstate.Refinement
	refineWait time.Duration
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]

	_, a.refinement = a.resolver.Resolve(ctx, a.state)

	switch cmd {
	case "status":
		return a.status(ctx, rest)
	case "guest":
		return a.guest(ctx)
	case "register":
		return a.signIn(ctx, "register", rest)
	case "login":
		return a.signIn(ctx, "login", rest)
	case "logout":
		return a.logout(ctx)
	case "scan":
		return a.scan(ctx, rest)
	case "list":
		return a.list(ctx, rest)
	case "summary":
		return a.summary(ctx, rest)
	case "sync":
		return a.sync(ctx)
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

// status prints the resolved session. It waits up to refineWait for the
// background email lookup so the identity shown is the freshest available.
func (a *app) status(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	asJSON := fs.Bool("json", false, "print the session as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if a.refinement != nil && a.refineWait > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, a.refineWait)
		a.refinement.Wait(waitCtx)
		cancel()
	}

	snap := a.state.Snapshot()
	if *asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	fmt.Fprintf(a.out, "mode:     %s\n", snap.Mode)
	if snap.IdentityLabel != "" {
		fmt.Fprintf(a.out, "identity: %s\n", snap.IdentityLabel)
	}
	if snap.GuestID != nil {
		fmt.Fprintf(a.out, "guest id: %s\n", snap.GuestID)
	}
	storage := "backend"
	if snap.UseLocalStorage {
		storage = "this device"
	}
	if snap.Mode != sessionstate.ModeLoggedOut {
		fmt.Fprintf(a.out, "receipts: %s\n", storage)
	}
	return nil
}

func (a *app) guest(ctx context.Context) error {
	snap := a.state.Snapshot()
	if snap.Mode == sessionstate.ModeGuest {
		fmt.Fprintf(a.out, "already in guest mode (%s)\n", snap.GuestID)
		return nil
	}
	if snap.Mode == sessionstate.ModeAuthenticated {
		return errAlreadySignedIn
	}

	sess, err := a.api.Guest(ctx)
	if err != nil {
		return fmt.Errorf("starting guest session: %w", err)
	}
	guestID := sessionGuestID(sess)
	if guestID == uuid.Nil {
		return errors.New("backend did not return a guest id")
	}

	if err := a.store.Set(ctx, sessionstate.KeyGuestUserID, guestID.String()); err != nil {
		return fmt.Errorf("saving guest id: %w", err)
	}
	if err := a.store.Set(ctx, sessionstate.KeyGuestMode, "true"); err != nil {
		return fmt.Errorf("saving guest flag: %w", err)
	}

	_, a.refinement = a.resolver.Resolve(ctx, a.state)
	fmt.Fprintf(a.out, "guest session started (%s); receipts stay on this device\n", guestID)
	return nil
}

func (a *app) signIn(ctx context.Context, name string, args []string) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("SNAPSPEND_PASSWORD"), "account password (or SNAPSPEND_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*email) == "" || *password == "" {
		return fmt.Errorf("%s requires -email and -password", name)
	}
	if a.state.Snapshot().Mode == sessionstate.ModeAuthenticated {
		return errAlreadySignedIn
	}

	var (
		sess *apiclient.Session
		err  error
	)
	if name == "register" {
		sess, err = a.api.Register(ctx, *email, *password)
	} else {
		sess, err = a.api.Login(ctx, *email, *password)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	// Leaving guest mode keeps the guest id so sync can find the device receipts.
	if err := a.store.Delete(ctx, sessionstate.KeyGuestMode); err != nil {
		return fmt.Errorf("clearing guest flag: %w", err)
	}

	_, a.refinement = a.resolver.Resolve(ctx, a.state)
	label := *email
	if sess.User != nil && sess.User.Email != "" {
		label = sess.User.Email
	}
	fmt.Fprintf(a.out, "signed in as %s\n", label)

	if pending, err := a.pendingGuestReceipts(ctx); err == nil && len(pending) > 0 {
		fmt.Fprintf(a.out, "%d guest receipt(s) on this device; run `snapspend sync` to upload them\n", len(pending))
	}
	return nil
}

// logout is the explicit sign-out: it revokes the backend session and wipes
// every persisted value on the device, guest receipts included.
func (a *app) logout(ctx context.Context) error {
	if err := a.api.Logout(ctx); err != nil {
		a.logg.Warn(a.logg.WithError(ctx, err), "cli.logout.remote_failed")
	}
	if err := a.store.Clear(ctx); err != nil {
		return fmt.Errorf("clearing device state: %w", err)
	}
	a.state.Reset()
	fmt.Fprintln(a.out, "signed out")
	return nil
}

func (a *app) scan(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	draft := fs.Bool("draft", false, "print the extracted receipt without saving it")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("scan requires exactly one image path")
	}

	snap := a.state.Snapshot()
	if snap.Mode != sessionstate.ModeGuest && snap.Mode != sessionstate.ModeAuthenticated {
		return errNotSignedIn
	}

	path := fs.Arg(0)
	image, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType == "" {
		mimeType = http.DetectContentType(image)
	}

	saveRemote := !*draft && !snap.UseLocalStorage
	r, err := a.api.ScanReceipt(ctx, image, filepath.Base(path), mimeType, saveRemote)
	if err != nil {
		return fmt.Errorf("scanning receipt: %w", err)
	}

	if !*draft && snap.UseLocalStorage {
		r.UserID = *snap.GuestID
		if err := a.store.Receipts(*snap.GuestID).Save(ctx, *r); err != nil {
			return fmt.Errorf("saving receipt on device: %w", err)
		}
	}

	verb := "saved"
	if *draft {
		verb = "extracted"
	}
	fmt.Fprintf(a.out, "%s %s: %s %s %s (%d items, saved %s)\n",
		verb, r.ID, r.PurchaseDate.Format("2006-01-02"), r.StoreName,
		money(r.ActualAmountSpent().StringFixed(2), r.Currency), len(r.Items), r.Savings().StringFixed(2))
	return nil
}

func (a *app) list(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fromRaw := fs.String("from", "", "inclusive start date (YYYY-MM-DD)")
	toRaw := fs.String("to", "", "exclusive end date (YYYY-MM-DD)")
	limit := fs.Int("limit", 25, "maximum receipts to show")
	cursor := fs.String("cursor", "", "page cursor from a previous call")
	if err := fs.Parse(args); err != nil {
		return err
	}
	from, to, err := parseRange(*fromRaw, *toRaw)
	if err != nil {
		return err
	}

	snap := a.state.Snapshot()
	var (
		receipts []receipt.Receipt
		next     string
	)
	switch {
	case snap.UseLocalStorage:
		all, err := a.store.Receipts(*snap.GuestID).List(ctx)
		if err != nil {
			return fmt.Errorf("reading device receipts: %w", err)
		}
		receipts = filterRange(all, from, to)
		if *limit > 0 && len(receipts) > *limit {
			receipts = receipts[:*limit]
		}
	case snap.Mode == sessionstate.ModeAuthenticated:
		page, err := a.api.ListReceipts(ctx, apiclient.ListOptions{From: from, To: to, Limit: *limit, Cursor: *cursor})
		if err != nil {
			return fmt.Errorf("listing receipts: %w", err)
		}
		receipts, next = page.Items, page.NextCursor
	default:
		return errNotSignedIn
	}

	if len(receipts) == 0 {
		fmt.Fprintln(a.out, "no receipts")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tSTORE\tSPENT\tSAVED\tITEMS\tID")
	for _, r := range receipts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			r.PurchaseDate.Format("2006-01-02"), r.StoreName,
			money(r.ActualAmountSpent().StringFixed(2), r.Currency), r.Savings().StringFixed(2),
			len(r.Items), r.ID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if next != "" {
		fmt.Fprintf(a.out, "next page: snapspend list -cursor %s\n", next)
	}
	return nil
}

func (a *app) summary(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fromRaw := fs.String("from", "", "inclusive start date (YYYY-MM-DD)")
	toRaw := fs.String("to", "", "exclusive end date (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	from, to, err := parseRange(*fromRaw, *toRaw)
	if err != nil {
		return err
	}

	snap := a.state.Snapshot()
	var out summaryView
	switch {
	case snap.UseLocalStorage:
		all, err := a.store.Receipts(*snap.GuestID).List(ctx)
		if err != nil {
			return fmt.Errorf("reading device receipts: %w", err)
		}
		s := query.Summarize(filterRange(all, from, to), localTopStores)
		out = summaryView{
			count:    s.ReceiptCount,
			spent:    s.TotalSpent.StringFixed(2),
			saved:    s.TotalSaved.StringFixed(2),
			original: s.TotalOriginal.StringFixed(2),
		}
		for _, c := range s.ByCategory {
			out.categories = append(out.categories, [2]string{c.Label, c.Value.StringFixed(2)})
		}
	case snap.Mode == sessionstate.ModeAuthenticated:
		s, err := a.api.Summary(ctx, from, to)
		if err != nil {
			return fmt.Errorf("fetching summary: %w", err)
		}
		out = summaryView{
			count:    s.ReceiptCount,
			spent:    s.TotalSpent.StringFixed(2),
			saved:    s.TotalSaved.StringFixed(2),
			original: s.TotalOriginal.StringFixed(2),
		}
		for _, c := range s.ByCategory {
			out.categories = append(out.categories, [2]string{c.Label, c.Value.StringFixed(2)})
		}
	default:
		return errNotSignedIn
	}

	fmt.Fprintf(a.out, "receipts: %d\nspent:    %s\nsaved:    %s\nwithout discounts: %s\n", out.count, out.spent, out.saved, out.original)
	if len(out.categories) > 0 {
		fmt.Fprintln(a.out, "by category:")
		for _, c := range out.categories {
			fmt.Fprintf(a.out, "  %-14s %s\n", c[0], c[1])
		}
	}
	return nil
}

type summaryView struct {
	count      int
	spent      string
	saved      string
	original   string
	categories [][2]string
}

// sync uploads receipts captured in guest mode to the signed-in account.
// Uploaded receipts are removed from the device; failures are collected and
// returned together so one bad receipt does not block the rest.
func (a *app) sync(ctx context.Context) error {
	if a.state.Snapshot().Mode != sessionstate.ModeAuthenticated {
		return errors.New("sync requires a signed-in account: run `snapspend login` or `snapspend register`")
	}

	guestID, ok := a.storedGuestID(ctx)
	if !ok {
		fmt.Fprintln(a.out, "nothing to sync")
		return nil
	}
	local := a.store.Receipts(guestID)
	pending, err := local.List(ctx)
	if err != nil {
		return fmt.Errorf("reading device receipts: %w", err)
	}

	var errs error
	uploaded := 0
	for _, r := range pending {
		if _, err := a.api.CreateReceipt(ctx, r); err != nil && !apiclient.IsStatus(err, http.StatusConflict) {
			errs = multierr.Append(errs, fmt.Errorf("receipt %s: %w", r.ID, err))
			continue
		}
		if err := local.Delete(ctx, r.ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("receipt %s: removing device copy: %w", r.ID, err))
			continue
		}
		uploaded++
	}

	if errs == nil {
		if err := a.store.Delete(ctx, sessionstate.KeyGuestUserID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("clearing guest id: %w", err))
		}
	}

	fmt.Fprintf(a.out, "synced %d of %d receipt(s)\n", uploaded, len(pending))
	return errs
}

func (a *app) pendingGuestReceipts(ctx context.Context) ([]receipt.Receipt, error) {
	guestID, ok := a.storedGuestID(ctx)
	if !ok {
		return nil, nil
	}
	return a.store.Receipts(guestID).List(ctx)
}

func (a *app) storedGuestID(ctx context.Context) (uuid.UUID, bool) {
	raw, err := a.store.Get(ctx, sessionstate.KeyGuestUserID)
	if err != nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func sessionGuestID(sess *apiclient.Session) uuid.UUID {
	if sess == nil {
		return uuid.Nil
	}
	if sess.GuestID != nil {
		return *sess.GuestID
	}
	if sess.User != nil && sess.User.IsGuest {
		return sess.User.ID
	}
	return uuid.Nil
}

func parseRange(fromRaw, toRaw string) (*time.Time, *time.Time, error) {
	parse := func(name, raw string) (*time.Time, error) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil, nil
		}
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, fmt.Errorf("-%s must be YYYY-MM-DD", name)
		}
		return &t, nil
	}
	from, err := parse("from", fromRaw)
	if err != nil {
		return nil, nil, err
	}
	to, err := parse("to", toRaw)
	if err != nil {
		return nil, nil, err
	}
	if from != nil && to != nil && !from.Before(*to) {
		return nil, nil, errors.New("-from must be before -to")
	}
	return from, to, nil
}

// filterRange keeps receipts with from <= purchase date < to, newest first.
func filterRange(in []receipt.Receipt, from, to *time.Time) []receipt.Receipt {
	out := make([]receipt.Receipt, 0, len(in))
	for _, r := range in {
		if from != nil && r.PurchaseDate.Before(*from) {
			continue
		}
		if to != nil && !r.PurchaseDate.Before(*to) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PurchaseDate.After(out[j].PurchaseDate)
	})
	return out
}

func money(amount, currency string) string {
	if currency == "" {
		return amount
	}
	return amount + " " + currency
}
