package qualtrics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// FetchDefinition returns the raw `result` payload of a survey definition.
func (c *Client) FetchDefinition(ctx context.Context, surveyID string) (json.RawMessage, error) {
	env, status, err := c.send(
		ctx,
		report_client_fetch_definition,
		http.MethodGet,
		definitionsPath+"/"+url.PathEscape(surveyID),
		nil,
	)
	if status == http.StatusNotFound {
		return nil, &NotFoundError{SurveyID: surveyID, Message: env.errorMessage()}
	}
	if err != nil {
		return nil, err
	}
	// some error bodies come back with a success status and no result
	if !env.hasResult() {
		return nil, &NotFoundError{SurveyID: surveyID, Message: env.errorMessage()}
	}
	return env.Result, nil
}
