// Package etl exposes the three pulls of the pipeline: the survey listing,
// a flattened survey definition and the reconciled responses of a survey.
package etl

import (
	"context"
	"encoding/json"
	"fmt"
	"qualflat/internal/components/assert"
	"qualflat/internal/components/chrono"
	"qualflat/internal/components/telemetry"
	"qualflat/internal/flatten"
	"qualflat/internal/qualtrics"
	"qualflat/internal/reconcile"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_service_pull_surveys    = "service.pull-surveys"
	report_service_pull_definition = "service.pull-definition"
	report_service_pull_results    = "service.pull-results"
)

var tracer = otel.Tracer("qualflat/internal/etl")

// API is the part of the qualtrics client the service depends on.
type API interface {
	ListSurveys(ctx context.Context) ([]qualtrics.Survey, error)
	FetchDefinition(ctx context.Context, surveyID string) (json.RawMessage, error)
	RequestExport(ctx context.Context, req qualtrics.ExportRequest) ([]byte, error)
}

type ServiceOptions struct {
	Flatten flatten.Options
	Poll    qualtrics.PollPolicy
	// Clock defaults to chrono.StandardImpl.
	Clock chrono.API
}

// Service holds no mutable state, pulls of different surveys may run
// concurrently.
type Service struct {
	api   API
	opts  ServiceOptions
	clock chrono.API
	tel   telemetry.API
}

func NewService(api API, opts ServiceOptions, tel telemetry.API) Service {
	assert.NotNil(api)
	assert.NotNil(tel)

	clock := opts.Clock
	if clock == nil {
		clock = chrono.NewStandardImpl()
	}
	if opts.Poll.Interval <= 0 {
		opts.Poll.Interval = qualtrics.DefaultPollInterval
	}

	return Service{
		api:   api,
		opts:  opts,
		clock: clock,
		tel:   telemetry.NewScopedAPI("etl", tel),
	}
}

func failSpan(span trace.Span, err error, msg string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
}

func (s Service) PullSurveys(ctx context.Context) ([]qualtrics.Survey, error) {
	ctx, span := tracer.Start(ctx, "PullSurveys")
	defer span.End()

	surveys, err := s.api.ListSurveys(ctx)
	if err != nil {
		failSpan(span, err, "failed to list surveys")
		s.tel.ReportBroken(report_service_pull_surveys, err)
		return nil, fmt.Errorf("pull surveys: %w", err)
	}
	s.tel.ReportCount(report_service_pull_surveys, int64(len(surveys)))
	return surveys, nil
}

func (s Service) PullDefinition(ctx context.Context, surveyID string) (flatten.Result, error) {
	ctx, span := tracer.Start(ctx, "PullDefinition")
	defer span.End()
	span.SetAttributes(attribute.String("survey_id", surveyID))

	definition, err := s.api.FetchDefinition(ctx, surveyID)
	if err != nil {
		failSpan(span, err, "failed to fetch definition")
		s.tel.ReportBroken(report_service_pull_definition, err, surveyID)
		return flatten.Result{}, fmt.Errorf("pull definition of %s: %w", surveyID, err)
	}

	result, err := flatten.Flatten(ctx, definition, s.opts.Flatten)
	if err != nil {
		failSpan(span, err, "failed to flatten definition")
		s.tel.ReportBroken(report_service_pull_definition, err, surveyID)
		return flatten.Result{}, fmt.Errorf("flatten definition of %s: %w", surveyID, err)
	}
	s.tel.ReportCount(report_service_pull_definition, int64(len(result.Rows)))
	return result, nil
}

// PullResults requests the label export and then the numeric export of a
// survey, both capped at the same end date so they cover the same set of
// responses, and reconciles them.
func (s Service) PullResults(ctx context.Context, surveyID string) ([]reconcile.Row, error) {
	ctx, span := tracer.Start(ctx, "PullResults")
	defer span.End()
	span.SetAttributes(attribute.String("survey_id", surveyID))

	endDate := s.clock.Now()

	exports := make([][]byte, 2)
	for i, useLabels := range []bool{true, false} {
		contents, err := s.api.RequestExport(ctx, qualtrics.ExportRequest{
			SurveyID:  surveyID,
			UseLabels: useLabels,
			EndDate:   endDate,
			Poll:      s.opts.Poll,
		})
		if err != nil {
			failSpan(span, err, "failed to export responses")
			s.tel.ReportBroken(report_service_pull_results, err, surveyID, useLabels)
			return nil, fmt.Errorf("export responses of %s (labels: %v): %w", surveyID, useLabels, err)
		}
		exports[i] = contents
	}
	s.tel.ReportDebug("exports are finished, combining them", surveyID)

	rows, err := reconcile.Reconcile(surveyID, exports[0], exports[1])
	if err != nil {
		failSpan(span, err, "failed to reconcile exports")
		s.tel.ReportBroken(report_service_pull_results, err, surveyID)
		return nil, fmt.Errorf("reconcile responses of %s: %w", surveyID, err)
	}
	s.tel.ReportCount(report_service_pull_results, int64(len(rows)))
	return rows, nil
}
