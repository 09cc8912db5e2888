package qualtrics

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
)

// Survey is one row of the survey listing.
type Survey struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	IsActive     bool   `json:"isActive"`
	Created      string `json:"creationDate"`
	LastModified string `json:"lastModified"`
}

type surveyPage struct {
	Elements []Survey `json:"elements"`
	NextPage *string  `json:"nextPage"`
}

// SurveyPages lazily walks the survey listing one page at a time, following
// the nextPage cursor until it is null. Iteration stops after the first
// error is yielded.
func (c *Client) SurveyPages(ctx context.Context) iter.Seq2[[]Survey, error] {
	return func(yield func([]Survey, error) bool) {
		url := surveysPath
		for page := 0; ; page++ {
			env, _, err := c.send(ctx, report_client_list_surveys, http.MethodGet, url, nil)
			if err != nil {
				yield(nil, err)
				return
			}

			var result surveyPage
			err = json.Unmarshal(env.Result, &result)
			if err != nil {
				err = &TransportError{
					Op:  report_client_list_surveys,
					URL: url,
					Err: fmt.Errorf("decode survey page: %w", err),
				}
				c.tel.ReportBroken(report_client_list_surveys, err, page)
				yield(nil, err)
				return
			}
			c.tel.ReportCount(report_client_list_surveys, int64(len(result.Elements)))

			if !yield(result.Elements, nil) {
				return
			}
			if result.NextPage == nil || *result.NextPage == "" {
				return
			}
			url = *result.NextPage
		}
	}
}

// ListSurveys collects every page of the survey listing.
func (c *Client) ListSurveys(ctx context.Context) ([]Survey, error) {
	var surveys []Survey
	for page, err := range c.SurveyPages(ctx) {
		if err != nil {
			return nil, err
		}
		surveys = append(surveys, page...)
	}
	return surveys, nil
}
