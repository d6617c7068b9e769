package events

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Reader provides read access to the ClickHouse safeguard_events table.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader opens a ClickHouse connection for read queries.
func NewReader(dsn string, logger *zap.Logger) (*Reader, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}

	return &Reader{conn: conn, logger: logger}, nil
}

// Close closes the ClickHouse connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// EventRow represents a single row from the safeguard_events table.
type EventRow struct {
	EventID        string    `json:"event_id"`
	ProjectID      string    `json:"project_id"`
	Timestamp      time.Time `json:"timestamp"`
	EventType      string    `json:"event_type"`
	Message        string    `json:"message"`
	SourceAgent    string    `json:"source_agent"`
	TargetAgent    string    `json:"target_agent"`
	GuardrailType  string    `json:"guardrail_type"`
	Action         string    `json:"action"`
	ContentPreview string    `json:"content_preview"`
}

// ListEventsParams holds filters and pagination for event listing.
type ListEventsParams struct {
	ProjectID   string
	EventType   *string
	SourceAgent *string
	TargetAgent *string
	Action      *string
	StartTime   *time.Time
	EndTime     *time.Time
	Page        int
	PageSize    int
}

const eventColumns = "event_id, project_id, timestamp, event_type, message, " +
	"source_agent, target_agent, guardrail_type, action, content_preview"

func scanEventRow(row interface{ Scan(...any) error }, e *EventRow) error {
	return row.Scan(
		&e.EventID, &e.ProjectID, &e.Timestamp, &e.EventType, &e.Message,
		&e.SourceAgent, &e.TargetAgent, &e.GuardrailType, &e.Action, &e.ContentPreview,
	)
}

// ListEvents returns paginated, filtered safeguard events and the total count.
func (r *Reader) ListEvents(ctx context.Context, params ListEventsParams) ([]EventRow, int, error) {
	conditions := []string{"project_id = @project_id"}
	args := []any{
		clickhouse.Named("project_id", params.ProjectID),
	}

	if params.EventType != nil {
		conditions = append(conditions, "event_type = @event_type")
		args = append(args, clickhouse.Named("event_type", *params.EventType))
	}
	if params.SourceAgent != nil {
		conditions = append(conditions, "source_agent = @source_agent")
		args = append(args, clickhouse.Named("source_agent", *params.SourceAgent))
	}
	if params.TargetAgent != nil {
		conditions = append(conditions, "target_agent = @target_agent")
		args = append(args, clickhouse.Named("target_agent", *params.TargetAgent))
	}
	if params.Action != nil {
		conditions = append(conditions, "action = @action")
		args = append(args, clickhouse.Named("action", *params.Action))
	}
	if params.StartTime != nil {
		conditions = append(conditions, "timestamp >= @start_time")
		args = append(args, clickhouse.Named("start_time", *params.StartTime))
	}
	if params.EndTime != nil {
		conditions = append(conditions, "timestamp <= @end_time")
		args = append(args, clickhouse.Named("end_time", *params.EndTime))
	}

	where := strings.Join(conditions, " AND ")
	offset := (params.Page - 1) * params.PageSize

	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM safeguard_events WHERE %s", where)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListEvents count: %w", err)
	}

	dataQuery := fmt.Sprintf(
		"SELECT %s FROM safeguard_events WHERE %s "+
			"ORDER BY timestamp DESC "+
			"LIMIT @limit OFFSET @offset",
		eventColumns, where,
	)
	args = append(args,
		clickhouse.Named("limit", uint32(params.PageSize)),
		clickhouse.Named("offset", uint32(offset)),
	)

	rows, err := r.conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListEvents query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := scanEventRow(rows, &e); err != nil {
			return nil, 0, fmt.Errorf("ListEvents scan: %w", err)
		}
		events = append(events, e)
	}

	return events, int(total), rows.Err()
}

// GetEvent returns a single event by project ID and event ID, or nil if not found.
func (r *Reader) GetEvent(ctx context.Context, projectID, eventID string) (*EventRow, error) {
	row := r.conn.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM safeguard_events "+
			"WHERE project_id = @project_id AND event_id = @event_id", eventColumns),
		clickhouse.Named("project_id", projectID),
		clickhouse.Named("event_id", eventID),
	)

	var e EventRow
	if err := scanEventRow(row, &e); err != nil {
		// ClickHouse doesn't return sql.ErrNoRows, so check for empty result
		return nil, fmt.Errorf("GetEvent: %w", err)
	}
	if e.EventID == "" {
		return nil, nil
	}
	return &e, nil
}

// SummaryStats holds aggregate counts over the query range.
type SummaryStats struct {
	TotalChecks int `json:"total_checks"`
	Violations  int `json:"violations"`
	Blocks      int `json:"blocks"`
	Masks       int `json:"masks"`
	Warnings    int `json:"warnings"`
}

// TimeSeriesBucket holds an hourly count.
type TimeSeriesBucket struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

// AgentPairCount holds a source/target agent pair and its violation count.
type AgentPairCount struct {
	SourceAgent string `json:"source_agent"`
	TargetAgent string `json:"target_agent"`
	Count       int    `json:"count"`
}

// GuardrailCount holds a guardrail type and its violation count.
type GuardrailCount struct {
	GuardrailType string `json:"guardrail_type"`
	Count         int    `json:"count"`
}

// AnalyticsResult holds all analytics aggregations.
type AnalyticsResult struct {
	Summary            SummaryStats       `json:"summary"`
	ViolationsOverTime []TimeSeriesBucket `json:"violations_over_time"`
	TopAgentPairs      []AgentPairCount   `json:"top_agent_pairs"`
	GuardrailBreakdown []GuardrailCount   `json:"guardrail_breakdown"`
}

// GetAnalytics returns aggregated analytics for a project over the given number of days.
func (r *Reader) GetAnalytics(ctx context.Context, projectID string, days int) (*AnalyticsResult, error) {
	rangeStart := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)

	baseArgs := []any{
		clickhouse.Named("project_id", projectID),
		clickhouse.Named("range_start", rangeStart),
	}

	result := &AnalyticsResult{}

	var totalChecks, violations, blocks, masks, warnings uint64
	err := r.conn.QueryRow(ctx,
		"SELECT countIf(event_type = 'check') as total_checks, "+
			"countIf(event_type = 'violation') as violations, "+
			"countIf(event_type = 'action' AND action = 'block') as blocks, "+
			"countIf(event_type = 'action' AND action = 'mask') as masks, "+
			"countIf(event_type = 'action' AND action = 'warn') as warnings "+
			"FROM safeguard_events "+
			"WHERE project_id = @project_id AND timestamp >= @range_start",
		baseArgs...,
	).Scan(&totalChecks, &violations, &blocks, &masks, &warnings)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics summary: %w", err)
	}
	result.Summary = SummaryStats{
		TotalChecks: int(totalChecks),
		Violations:  int(violations),
		Blocks:      int(blocks),
		Masks:       int(masks),
		Warnings:    int(warnings),
	}

	votRows, err := r.conn.Query(ctx,
		"SELECT toStartOfHour(timestamp) as hour, count() as count "+
			"FROM safeguard_events "+
			"WHERE project_id = @project_id AND event_type = 'violation' "+
			"AND timestamp >= @range_start "+
			"GROUP BY hour ORDER BY hour",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics violations_over_time: %w", err)
	}
	defer func() { _ = votRows.Close() }()
	for votRows.Next() {
		var hour time.Time
		var count uint64
		if err := votRows.Scan(&hour, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics violations_over_time scan: %w", err)
		}
		result.ViolationsOverTime = append(result.ViolationsOverTime, TimeSeriesBucket{
			Hour:  hour.Format(time.RFC3339),
			Count: int(count),
		})
	}

	pairRows, err := r.conn.Query(ctx,
		"SELECT source_agent, target_agent, count() as count "+
			"FROM safeguard_events "+
			"WHERE project_id = @project_id AND event_type = 'violation' "+
			"AND timestamp >= @range_start "+
			"GROUP BY source_agent, target_agent ORDER BY count DESC LIMIT 10",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics top_agent_pairs: %w", err)
	}
	defer func() { _ = pairRows.Close() }()
	for pairRows.Next() {
		var src, dst string
		var count uint64
		if err := pairRows.Scan(&src, &dst, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics top_agent_pairs scan: %w", err)
		}
		result.TopAgentPairs = append(result.TopAgentPairs, AgentPairCount{
			SourceAgent: src, TargetAgent: dst, Count: int(count),
		})
	}

	grRows, err := r.conn.Query(ctx,
		"SELECT guardrail_type, count() as count "+
			"FROM safeguard_events "+
			"WHERE project_id = @project_id AND event_type = 'violation' "+
			"AND guardrail_type != '' AND timestamp >= @range_start "+
			"GROUP BY guardrail_type ORDER BY count DESC",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics guardrail_breakdown: %w", err)
	}
	defer func() { _ = grRows.Close() }()
	for grRows.Next() {
		var gt string
		var count uint64
		if err := grRows.Scan(&gt, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics guardrail_breakdown scan: %w", err)
		}
		result.GuardrailBreakdown = append(result.GuardrailBreakdown, GuardrailCount{
			GuardrailType: gt, Count: int(count),
		})
	}

	// Ensure slices are non-nil for JSON serialization
	if result.ViolationsOverTime == nil {
		result.ViolationsOverTime = []TimeSeriesBucket{}
	}
	if result.TopAgentPairs == nil {
		result.TopAgentPairs = []AgentPairCount{}
	}
	if result.GuardrailBreakdown == nil {
		result.GuardrailBreakdown = []GuardrailCount{}
	}

	return result, nil
}
