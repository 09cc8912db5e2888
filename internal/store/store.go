// Package store persists pulled tables into sqlite or libsql, each pull is
// stamped with its own id.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"qualflat/internal/components/assert"
	"qualflat/internal/components/chrono"
	"qualflat/internal/flatten"
	"qualflat/internal/qualtrics"
	"qualflat/internal/reconcile"
	"qualflat/internal/store/db"
	"time"

	"github.com/google/uuid"
)

const (
	KindSurveys    = "surveys"
	KindDefinition = "definition"
	KindResponses  = "responses"
)

type Store struct {
	db    *sql.DB
	clock chrono.API
}

func NewStore(database *sql.DB, clock chrono.API) Store {
	assert.NotNil(database)
	if clock == nil {
		clock = chrono.NewStandardImpl()
	}
	return Store{db: database, clock: clock}
}

// Migrate creates any missing tables.
func (s Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, db.Schema)
	return err
}

type Pull struct {
	ID       string
	Kind     string
	SurveyID string
	PulledAt time.Time
	RowCount int
}

// save runs insert for every row inside a single transaction together with
// the pull record.
func (s Store) save(ctx context.Context, kind, surveyID string, rowCount int, query string, args func(pullID string, i int) []any) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	pullID := uuid.NewString()
	_, err = tx.ExecContext(
		ctx,
		"insert into pulls(id, kind, survey_id, pulled_at, row_count) values (?, ?, ?, ?, ?)",
		pullID, kind, surveyID, s.clock.Now().Unix(), rowCount,
	)
	if err != nil {
		return "", err
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return "", err
	}
	defer stmt.Close()

	for i := 0; i < rowCount; i++ {
		_, err = stmt.ExecContext(ctx, args(pullID, i)...)
		if err != nil {
			return "", fmt.Errorf("insert %s row %d: %w", kind, i, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return "", err
	}
	return pullID, nil
}

func (s Store) SaveSurveys(ctx context.Context, surveys []qualtrics.Survey) (string, error) {
	return s.save(
		ctx, KindSurveys, "", len(surveys),
		`insert into surveys(pull_id, position, survey_id, name, is_active, created, last_modified)
		values (?, ?, ?, ?, ?, ?, ?)`,
		func(pullID string, i int) []any {
			sv := surveys[i]
			return []any{pullID, i, sv.ID, sv.Name, sv.IsActive, sv.Created, sv.LastModified}
		},
	)
}

func (s Store) SaveDefinition(ctx context.Context, surveyID string, rows []flatten.Row) (string, error) {
	return s.save(
		ctx, KindDefinition, surveyID, len(rows),
		`insert into definition_rows(
			pull_id, position, survey_id,
			flow_sort, flow_id, block_element_sort, block_description,
			qid, cqid, question_text, question_type, selector, sub_selector,
			data_export_tag, choice_data_export_tags, display, image_display,
			image_location, variable_naming, choice_order, crecode
		) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		func(pullID string, i int) []any {
			args := []any{pullID, i, surveyID}
			for _, v := range rows[i].Values() {
				args = append(args, v)
			}
			return args
		},
	)
}

func (s Store) SaveResponses(ctx context.Context, surveyID string, rows []reconcile.Row) (string, error) {
	return s.save(
		ctx, KindResponses, surveyID, len(rows),
		`insert into response_rows(
			pull_id, position, survey_id, response_id, qid, cqid,
			qrecode, txt_resp_answer, num_resp_answer
		) values (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		func(pullID string, i int) []any {
			r := rows[i]
			return []any{pullID, i, surveyID, r.ResponseID, r.QID, r.CQID, r.QRecode, r.TxtRespAnswer, r.NumRespAnswer}
		},
	)
}

// Pulls lists every recorded pull, newest first.
func (s Store) Pulls(ctx context.Context) ([]Pull, error) {
	rows, err := s.db.QueryContext(
		ctx,
		"select id, kind, survey_id, pulled_at, row_count from pulls order by pulled_at desc, rowid desc",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pulls []Pull
	for rows.Next() {
		var p Pull
		var pulledAt int64
		err := rows.Scan(&p.ID, &p.Kind, &p.SurveyID, &pulledAt, &p.RowCount)
		if err != nil {
			return nil, err
		}
		p.PulledAt = time.Unix(pulledAt, 0).UTC()
		pulls = append(pulls, p)
	}
	return pulls, rows.Err()
}

func (s Store) ResponseRows(ctx context.Context, pullID string) ([]reconcile.Row, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`select survey_id, response_id, qid, cqid, qrecode, txt_resp_answer, num_resp_answer
		from response_rows where pull_id = ? order by position`,
		pullID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reconcile.Row
	for rows.Next() {
		var r reconcile.Row
		err := rows.Scan(&r.SurveyID, &r.ResponseID, &r.QID, &r.CQID, &r.QRecode, &r.TxtRespAnswer, &r.NumRespAnswer)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s Store) DefinitionRows(ctx context.Context, pullID string) ([]flatten.Row, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`select
			flow_sort, flow_id, block_element_sort, block_description,
			qid, cqid, question_text, question_type, selector, sub_selector,
			data_export_tag, choice_data_export_tags, display, image_display,
			image_location, variable_naming, choice_order, crecode
		from definition_rows where pull_id = ? order by position`,
		pullID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []flatten.Row
	for rows.Next() {
		var r flatten.Row
		err := rows.Scan(
			&r.FlowSort, &r.FlowID, &r.BlockElementSort, &r.BlockDescription,
			&r.QID, &r.CQID, &r.QuestionText, &r.QuestionType, &r.Selector, &r.SubSelector,
			&r.DataExportTag, &r.ChoiceDataExportTags, &r.Display, &r.ImageDisplay,
			&r.ImageLocation, &r.VariableNaming, &r.ChoiceOrder, &r.CRecode,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
