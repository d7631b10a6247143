package usecase

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/iho/paywatch/internal/domain"
)

// SweepReport summarizes one mailbox sweep.
type SweepReport struct {
	Messages        int
	Blocks          int
	RejectedSenders int
	FetchErrors     int
	ParseFailures   int
	ReconcileErrors int
	Duplicates      int

	ByStatus map[domain.MovementStatus]int
	Items    []SweepItem
}

// SweepItem is one reconciled movement row in the run summary.
type SweepItem struct {
	MovementID     string
	VariableSymbol string
	Price          string
	Status         domain.MovementStatus
}

// NewSweepReport creates an empty sweep report.
func NewSweepReport() *SweepReport {
	return &SweepReport{ByStatus: make(map[domain.MovementStatus]int)}
}

// Record adds a reconciled movement to the report.
func (r *SweepReport) Record(movement *domain.BankMovement) {
	r.ByStatus[movement.Status]++
	r.Items = append(r.Items, SweepItem{
		MovementID:     movement.ID,
		VariableSymbol: movement.VariableSymbol,
		Price:          movement.Price.StringFixed(2) + " " + movement.CurrencyISO,
		Status:         movement.Status,
	})
}

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed)
)

func colorForMovement(status domain.MovementStatus) *color.Color {
	switch status {
	case domain.MovementSuccess, domain.MovementDone:
		return okColor
	case domain.MovementSystemError:
		return failColor
	default:
		return warnColor
	}
}

// Render writes the sweep summary table.
func (r *SweepReport) Render(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "MOVEMENT\tVS\tAMOUNT\tSTATUS")
	for _, item := range r.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			item.MovementID,
			item.VariableSymbol,
			item.Price,
			colorForMovement(item.Status).Sprint(string(item.Status)),
		)
	}
	tw.Flush()

	fmt.Fprintf(w, "\nmessages=%d blocks=%d duplicates=%d rejected_senders=%d parse_failures=%d fetch_errors=%d reconcile_errors=%d\n",
		r.Messages, r.Blocks, r.Duplicates, r.RejectedSenders, r.ParseFailures, r.FetchErrors, r.ReconcileErrors)

	statuses := make([]string, 0, len(r.ByStatus))
	for status := range r.ByStatus {
		statuses = append(statuses, string(status))
	}
	sort.Strings(statuses)

	for _, status := range statuses {
		fmt.Fprintf(w, "  %s=%d\n", status, r.ByStatus[domain.MovementStatus(status)])
	}
}

// AlertReport summarizes one escalation run.
type AlertReport struct {
	Rows []AlertRow

	Fired   int
	Waiting int
	Denied  int
	Errors  int
}

// AlertRow is one invoice's outcome in the run summary.
type AlertRow struct {
	Number  string
	DueDate time.Time
	Outcome AlertOutcome
}

// NewAlertReport creates an empty alert report.
func NewAlertReport() *AlertReport {
	return &AlertReport{}
}

// Add records one invoice's outcome.
func (r *AlertReport) Add(invoice *domain.Invoice, outcome AlertOutcome) {
	r.Rows = append(r.Rows, AlertRow{
		Number:  invoice.Number,
		DueDate: invoice.DueDate,
		Outcome: outcome,
	})

	switch outcome {
	case OutcomeWaiting:
		r.Waiting++
	case OutcomeDenied:
		r.Denied++
	case OutcomeError:
		r.Errors++
	default:
		r.Fired++
	}
}

func colorForOutcome(outcome AlertOutcome) *color.Color {
	switch outcome {
	case OutcomeError:
		return failColor
	case OutcomeWaiting, OutcomeDenied:
		return warnColor
	default:
		return okColor
	}
}

// Render writes the escalation summary table.
func (r *AlertReport) Render(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "INVOICE\tDUE DATE\tOUTCOME")
	for _, row := range r.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\n",
			row.Number,
			row.DueDate.Format("2006-01-02"),
			colorForOutcome(row.Outcome).Sprint(string(row.Outcome)),
		)
	}
	tw.Flush()

	fmt.Fprintf(w, "\nfired=%d waiting=%d denied=%d errors=%d\n",
		r.Fired, r.Waiting, r.Denied, r.Errors)
}
