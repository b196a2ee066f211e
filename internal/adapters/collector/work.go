package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/target/mmk-jobs/internal/core"
	"github.com/target/mmk-jobs/internal/domain/job"
	"github.com/target/mmk-jobs/internal/domain/model"
)

// Result metadata keys written by the collection work functions.
const (
	MetaCompanyName   = "company_name"
	MetaDateFrom      = "date_from"
	MetaDateTo        = "date_to"
	MetaChannelFilter = "channel_filter"
	MetaReportType    = "report_type"
	MetaTotalSpots    = "total_spots"
	MetaCompanies     = "companies"
	MetaChannelErrors = "channel_errors"
)

const maxWarningDetail = 50

// WorkOptions configures the collection work functions.
type WorkOptions struct {
	Source                 Source        // Required
	SubUnitTimeout         time.Duration // Per-channel fetch bound; defaults to 5m
	MaxConsecutiveFailures int           // Defaults to job.DefaultMaxConsecutiveFailures
	Logger                 *slog.Logger
}

// Work runs collection jobs against a Source.
type Work struct {
	source         Source
	subUnitTimeout time.Duration
	maxFailures    int
	logger         *slog.Logger
}

// NewWork constructs a Work.
func NewWork(opts WorkOptions) (*Work, error) {
	if opts.Source == nil {
		return nil, errors.New("source is required")
	}
	timeout := opts.SubUnitTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Work{
		source:         opts.Source,
		subUnitTimeout: timeout,
		maxFailures:    opts.MaxConsecutiveFailures,
		logger:         logger.With("component", "collector"),
	}, nil
}

// Registry returns the work functions keyed by the job type they serve.
func (w *Work) Registry() core.WorkRegistry {
	return core.WorkRegistry{
		model.JobTypeSpotlist: w.Spotlist,
		model.JobTypeTopTen:   w.TopTen,
	}
}

// Spotlist collects every matching spot into the request's row sink.
func (w *Work) Spotlist(ctx context.Context, req core.WorkRequest) (*model.WorkResult, error) {
	p, ok := req.Params.(model.SpotlistParams)
	if !ok {
		return nil, job.Fatalf("unexpected parameters %T for spotlist job", req.Params)
	}

	sum, err := w.collect(ctx, req, p.CollectionParams, req.Rows)
	if err != nil {
		return nil, err
	}

	req.Progress(ctx, 85, "Preparing results...")
	meta := baseMetadata(p.CollectionParams, model.JobTypeSpotlist, sum)
	req.Progress(ctx, 95, "Saving results...")
	return &model.WorkResult{Metadata: meta}, nil
}

// TopTen collects matching spots and ranks companies by spot count.
func (w *Work) TopTen(ctx context.Context, req core.WorkRequest) (*model.WorkResult, error) {
	p, ok := req.Params.(model.TopTenParams)
	if !ok {
		return nil, job.Fatalf("unexpected parameters %T for top_ten job", req.Params)
	}

	sink := req.Rows
	if sink == nil {
		sink = job.NewRowSink(0)
	}
	sum, err := w.collect(ctx, req, p.CollectionParams, sink)
	if err != nil {
		return nil, err
	}

	req.Progress(ctx, 85, "Preparing results...")
	ranking := RankCompanies(sink.Rows(), p.EffectiveLimit())
	meta := baseMetadata(p.CollectionParams, model.JobTypeTopTen, sum)
	meta[MetaCompanies] = len(ranking)
	req.Progress(ctx, 95, "Saving results...")
	return &model.WorkResult{Rows: ranking, Metadata: meta}, nil
}

type collectSummary struct {
	spots            int
	channelsWithData int
	channelErrors    int
}

// collect fetches every selected channel in order and adds matching rows to sink.
func (w *Work) collect(
	ctx context.Context,
	req core.WorkRequest,
	p model.CollectionParams,
	sink *job.RowSink,
) (collectSummary, error) {
	var sum collectSummary
	if sink == nil {
		sink = job.NewRowSink(0)
	}

	req.Progress(ctx, 5, "Connecting to reporting API...")
	req.Progress(ctx, 10, "Fetching channels...")
	all, err := w.source.Channels(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return sum, ctxErr
		}
		wrapped := fmt.Errorf("failed to fetch channels: %w", err)
		if job.IsRetryable(err) {
			return sum, job.Retryable(wrapped)
		}
		return sum, job.Fatal(wrapped)
	}

	channels := FilterChannels(all, p.ChannelTerms())
	total := len(channels)
	req.Progress(ctx, 15, fmt.Sprintf("Processing %d channels...", total))

	company := strings.ToLower(strings.TrimSpace(p.CompanyName))
	tracker := job.NewFailureTracker(w.maxFailures)

	for idx, ch := range channels {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		pct := 15 + idx*55/total
		req.Progress(ctx, pct, fmt.Sprintf("Processing %s (%d/%d)...", ch.Caption, idx+1, total))

		rows, err := w.fetchChannel(ctx, ch, p)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return sum, ctxErr
			}
			if IsAuthError(err) {
				return sum, job.Fatal(fmt.Errorf("channel %s: %w", ch.Caption, err))
			}
			sum.channelErrors++
			w.logger.WarnContext(ctx, "channel fetch failed",
				"job_id", req.JobID,
				"channel", ch.Caption,
				"error", err,
			)
			if errors.Is(err, context.DeadlineExceeded) {
				req.Progress(ctx, pct, fmt.Sprintf("Timeout on %s, continuing...", ch.Caption))
			} else {
				req.Progress(ctx, pct, fmt.Sprintf("Error on %s: %s", ch.Caption, truncate(err.Error(), maxWarningDetail)))
			}
			if tripErr := tracker.Failure(); tripErr != nil {
				return sum, tripErr
			}
			continue
		}
		tracker.Success()

		matches, full := addMatching(sink, rows, ch.Caption, company)
		sum.spots += matches
		if matches > 0 {
			sum.channelsWithData++
		}
		if full {
			req.Progress(ctx, pct, fmt.Sprintf("Row limit (%d) reached, stopping collection...", sink.Max()))
			break
		}
	}

	req.Progress(ctx, 70, fmt.Sprintf("Found %d spots from %d channels", sum.spots, sum.channelsWithData))
	if sum.spots == 0 {
		return sum, job.Fatalf("No data found for %s to %s", p.DateFrom, p.DateTo)
	}
	return sum, nil
}

func (w *Work) fetchChannel(ctx context.Context, ch Channel, p model.CollectionParams) ([]model.Row, error) {
	subCtx, cancel := context.WithTimeout(ctx, w.subUnitTimeout)
	defer cancel()
	return w.source.Spots(subCtx, ch.ID, p.DateFrom, p.DateTo)
}

// addMatching stamps the channel on each row and adds the rows matching company.
// It reports how many rows were added and whether a matching row was refused.
func addMatching(sink *job.RowSink, rows []model.Row, channel, company string) (int, bool) {
	added := 0
	for _, r := range rows {
		if company != "" && !strings.Contains(strings.ToLower(companyOf(r)), company) {
			continue
		}
		row := make(model.Row, len(r)+1)
		for k, v := range r {
			row[k] = v
		}
		row["Channel"] = channel
		if !sink.Add(row) {
			return added, true
		}
		added++
	}
	return added, false
}

// FilterChannels keeps channels whose caption contains any term. When no channel
// matches, or there are no terms, every channel is kept.
func FilterChannels(all []Channel, terms []string) []Channel {
	if len(terms) == 0 {
		return all
	}
	out := make([]Channel, 0, len(all))
	for _, ch := range all {
		caption := strings.ToLower(ch.Caption)
		for _, term := range terms {
			if strings.Contains(caption, term) {
				out = append(out, ch)
				break
			}
		}
	}
	if len(out) == 0 {
		return all
	}
	return out
}

// RankCompanies counts spots and channels per company and returns the top limit
// entries, most spots first. Ties are broken by company name.
func RankCompanies(rows []model.Row, limit int) []model.Row {
	type tally struct {
		spots    int
		channels map[string]struct{}
	}
	byCompany := make(map[string]*tally)
	for _, r := range rows {
		name := strings.TrimSpace(companyOf(r))
		if name == "" {
			continue
		}
		t, ok := byCompany[name]
		if !ok {
			t = &tally{channels: make(map[string]struct{})}
			byCompany[name] = t
		}
		t.spots++
		if ch, ok := r["Channel"].(string); ok {
			t.channels[ch] = struct{}{}
		}
	}

	names := make([]string, 0, len(byCompany))
	for name := range byCompany {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := byCompany[names[i]], byCompany[names[j]]
		if a.spots != b.spots {
			return a.spots > b.spots
		}
		return names[i] < names[j]
	})
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}

	out := make([]model.Row, len(names))
	for i, name := range names {
		t := byCompany[name]
		out[i] = model.Row{
			"Rank":     i + 1,
			"Company":  name,
			"Spots":    t.spots,
			"Channels": len(t.channels),
		}
	}
	return out
}

func companyOf(r model.Row) string {
	for _, k := range []string{"Company", "Kunde"} {
		if v, ok := r[k]; ok && v != nil {
			if s := fmt.Sprint(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func baseMetadata(p model.CollectionParams, t model.JobType, sum collectSummary) map[string]any {
	meta := map[string]any{
		MetaCompanyName:            p.CompanyName,
		MetaDateFrom:               p.DateFrom,
		MetaDateTo:                 p.DateTo,
		MetaReportType:             string(t),
		MetaTotalSpots:             sum.spots,
		model.MetaChannelsWithData: sum.channelsWithData,
	}
	if p.ChannelFilter != "" {
		meta[MetaChannelFilter] = p.ChannelFilter
	} else {
		meta[MetaChannelFilter] = nil
	}
	if sum.channelErrors > 0 {
		meta[MetaChannelErrors] = sum.channelErrors
	}
	return meta
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
