package flatten

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const ageDefinition = `{
	"Questions": {"QID1": {"QuestionText": "<b>Age?</b>", "QuestionType": "TE"}},
	"SurveyFlow": {"Flow": [{"Type": "Block", "ID": "BL1"}]},
	"Blocks": {"BL1": {"Type": "Default", "Description": "Block1", "BlockElements": [{"Type": "Question", "QuestionID": "QID1"}]}}
}`

const colourDefinition = `{
	"SurveyID": "SV_1",
	"Questions": {
		"QID1": {
			"QuestionText": "<b>Colour?</b>",
			"QuestionText_Unsafe": "<p>Favourite <b>colour</b>?</p><script>track()</script>",
			"QuestionType": "MC",
			"Selector": "SAVR",
			"SubSelector": "TX",
			"DataExportTag": "Q1",
			"Choices": {
				"1": {"Display": "Red"},
				"2": {"Display": "<i>Blue</i>"},
				"3": {"Display": "Green", "Image": {"Display": "grn", "ImageLocation": "IM_1"}}
			},
			"ChoiceOrder": ["2", "1", 3],
			"ChoiceDataExportTags": {"1": "red", "2": "blue", "3": "green"},
			"Validation": {"Settings": {"ForceResponse": "OFF"}},
			"Language": {"ES": {"QuestionText": "Color?"}}
		},
		"QID2": {
			"QuestionText": "Name",
			"QuestionType": "TE",
			"Selector": "SL",
			"DataExportTag": "Q2",
			"Answers": {"1": {"Display": "First"}, "2": {"Display": "Last"}}
		},
		"QID3": {
			"QuestionText": "Rank",
			"QuestionType": "PGR",
			"DataExportTag": "Q3",
			"Choices": {
				"1": {"Display": "Group A", "Choices": {"4": {"Display": "Apple"}}}
			}
		},
		"QID4": {
			"QuestionText": "Unused",
			"QuestionType": "DB"
		}
	},
	"SurveyFlow": {
		"Type": "Root",
		"Flow": [
			{"Type": "Block", "ID": "BL_1", "FlowID": "FL_1"},
			{"Type": "EmbeddedData", "FlowID": "FL_2", "EmbeddedData": [
				{"Field": "source", "Type": "Recipient", "Value": "web"},
				{"Description": "no field"}
			]},
			{"Type": "Branch", "FlowID": "FL_3", "Flow": [
				{"Type": "Block", "ID": "BL_2", "FlowID": "FL_4"}
			]}
		]
	},
	"Blocks": {
		"BL_1": {
			"Type": "Default",
			"Description": "Intro",
			"ID": "BL_1",
			"BlockElements": [
				{"Type": "Question", "QuestionID": "QID1"},
				{"Type": "Page Break"},
				{"Type": "Question", "QuestionID": "QID2"}
			],
			"Options": {"BlockLocking": "false"}
		},
		"BL_2": {
			"Type": "Standard",
			"Description": "Ranking",
			"ID": "BL_2",
			"BlockElements": [{"Type": "Question", "QuestionID": "QID3"}]
		}
	}
}`

func TestFlattenAgeScenario(t *testing.T) {
	result, err := Flatten(context.Background(), []byte(ageDefinition), Options{})
	require.NoError(t, err)

	expected := []Row{{
		FlowSort:         "0",
		BlockElementSort: "0",
		BlockDescription: "Block1",
		QID:              "QID1",
		CQID:             "QID1",
		QuestionText:     "Age?",
		QuestionType:     "TE",
	}}
	if diff := cmp.Diff(expected, result.Rows); diff != "" {
		t.Fatal(diff)
	}
}

func TestFlattenMinimalFlow(t *testing.T) {
	result, err := Flatten(context.Background(), []byte(ageDefinition), Options{})
	require.NoError(t, err)

	expected := []FlowRow{{FlowSort: 0, BlockID: "BL1", FlowType: "Block"}}
	if diff := cmp.Diff(expected, result.Flow); diff != "" {
		t.Fatal(diff)
	}
}

func TestFlatten(t *testing.T) {
	result, err := Flatten(context.Background(), []byte(colourDefinition), Options{})
	require.NoError(t, err)

	colour := Row{
		FlowSort:         "0",
		FlowID:           "FL_1",
		BlockElementSort: "0",
		BlockDescription: "Intro",
		QID:              "QID1",
		QuestionText:     "Favourite colour?",
		QuestionType:     "MC",
		Selector:         "SAVR",
		SubSelector:      "TX",
		DataExportTag:    "Q1",
	}
	blue := colour
	blue.CQID = "QID1-2"
	blue.ChoiceDataExportTags = "blue"
	blue.Display = "Blue"
	blue.ChoiceOrder = "0"
	blue.CRecode = "2"

	red := colour
	red.CQID = "QID1-1"
	red.ChoiceDataExportTags = "red"
	red.Display = "Red"
	red.ChoiceOrder = "1"
	red.CRecode = "1"

	green := colour
	green.CQID = "QID1-3"
	green.ChoiceDataExportTags = "green"
	green.Display = "Green"
	green.ImageDisplay = "grn"
	green.ImageLocation = "IM_1"
	green.ChoiceOrder = "2"
	green.CRecode = "3"

	name := Row{
		FlowSort:         "0",
		FlowID:           "FL_1",
		BlockElementSort: "2",
		BlockDescription: "Intro",
		QID:              "QID2",
		CQID:             "QID2",
		QuestionText:     "Name",
		QuestionType:     "TE",
		Selector:         "SL",
		DataExportTag:    "Q2",
	}

	rank := Row{
		FlowSort:         "3",
		FlowID:           "FL_4",
		BlockElementSort: "0",
		BlockDescription: "Ranking",
		QID:              "QID3",
		QuestionText:     "Rank",
		QuestionType:     "PGR",
		DataExportTag:    "Q3",
	}
	group := rank
	group.CQID = "QID3-1"
	group.Display = "Group A"
	group.CRecode = "1"
	apple := rank
	apple.CQID = "QID3#1-4"
	apple.Display = "Apple"
	apple.CRecode = "#1-4"

	expected := []Row{blue, red, green, name, group, apple}
	if diff := cmp.Diff(expected, result.Rows); diff != "" {
		t.Fatal(diff)
	}

	expectedFlow := []FlowRow{
		{FlowSort: 0, FlowID: "FL_1", BlockID: "BL_1", FlowType: "Block"},
		{FlowSort: 1, FlowID: "FL_2", FlowType: "EmbeddedData", Field: "source", Type: "Recipient", Value: "web"},
		{FlowSort: 2, FlowID: "FL_3", FlowType: "Branch"},
		{FlowSort: 3, FlowID: "FL_4", BlockID: "BL_2", FlowType: "Block"},
	}
	if diff := cmp.Diff(expectedFlow, result.Flow); diff != "" {
		t.Fatal(diff)
	}

	expectedBlocks := []BlockRow{
		{BlockID: "BL_1", BlockType: "Default", BlockDescription: "Intro", BlockElementSort: 0, BlockElementType: "Question", QID: "QID1"},
		{BlockID: "BL_1", BlockType: "Default", BlockDescription: "Intro", BlockElementSort: 2, BlockElementType: "Question", QID: "QID2"},
		{BlockID: "BL_2", BlockType: "Standard", BlockDescription: "Ranking", BlockElementSort: 0, BlockElementType: "Question", QID: "QID3"},
	}
	if diff := cmp.Diff(expectedBlocks, result.Blocks); diff != "" {
		t.Fatal(diff)
	}

	expectedAnswers := []Answer{
		{QID: "QID2", AnswerSort: 1, CRecode: "1", Setting: "Display", Value: "First"},
		{QID: "QID2", AnswerSort: 2, CRecode: "2", Setting: "Display", Value: "Last"},
	}
	if diff := cmp.Diff(expectedAnswers, result.Answers); diff != "" {
		t.Fatal(diff)
	}
}

func TestFlattenWideTable(t *testing.T) {
	result, err := Flatten(context.Background(), []byte(colourDefinition), Options{})
	require.NoError(t, err)
	require.IsType(t, WideTable{}, result.Wide)

	expectedColumns := []string{
		"QID",
		"QuestionText",
		"QuestionText_Unsafe",
		"QuestionType",
		"Selector",
		"SubSelector",
		"DataExportTag",
		"ChoiceOrder",
		"Validation.Settings.ForceResponse",
	}
	if diff := cmp.Diff(expectedColumns, result.Wide.Columns); diff != "" {
		t.Fatal(diff)
	}
	require.Len(t, result.Wide.Rows, 4)

	first := result.Wide.Rows[0]
	require.Equal(t, "QID1", first[0])
	require.Equal(t, `["2", "1", 3]`, first[7])
	require.Equal(t, "OFF", first[8])

	unused := result.Wide.Rows[3]
	require.Equal(t, []string{"QID4", "Unused", "", "DB", "", "", "", "", ""}, unused)
}

func TestFlattenEmbeddedDataRows(t *testing.T) {
	result, err := Flatten(context.Background(), []byte(colourDefinition), Options{IncludeEmbeddedData: true})
	require.NoError(t, err)

	last := result.Rows[len(result.Rows)-1]
	expected := Row{FlowSort: "1", FlowID: "FL_2", CQID: "source"}
	if diff := cmp.Diff(expected, last); diff != "" {
		t.Fatal(diff)
	}
}

func TestFlattenInvariants(t *testing.T) {
	result, err := Flatten(context.Background(), []byte(colourDefinition), Options{IncludeEmbeddedData: true})
	require.NoError(t, err)

	seen := map[string]int{}
	for _, r := range result.Rows {
		seen[r.CQID]++
		require.Len(t, r.Values(), len(Columns))
	}
	for cqid, count := range seen {
		require.Equal(t, 1, count, "duplicate CQID %s", cqid)
	}

	for _, cqid := range []string{"QID1-1", "QID1-2", "QID1-3"} {
		require.Equal(t, 1, seen[cqid], "ChoiceOrder entry %s", cqid)
	}
}

func TestFlattenRepeatedBlockReference(t *testing.T) {
	definition := `{
		"Questions": {"QID1": {"QuestionText": "Again", "QuestionType": "TE"}},
		"SurveyFlow": {"Flow": [
			{"Type": "Block", "ID": "BL1", "FlowID": "FL_1"},
			{"Type": "Block", "ID": "BL1", "FlowID": "FL_2"}
		]},
		"Blocks": [{"ID": "BL1", "Type": "Default", "BlockElements": [{"Type": "Question", "QuestionID": "QID1"}]}]
	}`
	result, err := Flatten(context.Background(), []byte(definition), Options{})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	require.Equal(t, "FL_1", result.Rows[0].FlowID)
}

func TestFlattenCollision(t *testing.T) {
	definition := `{
		"Questions": {"QID1": {
			"QuestionText": "Side by side",
			"QuestionType": "SBS",
			"AdditionalQuestions": {
				"1": {"DataExportTag": "Q1_a"},
				"2": {"DataExportTag": "Q1_b"}
			}
		}},
		"SurveyFlow": {"Flow": [{"Type": "Block", "ID": "BL1"}]},
		"Blocks": {"BL1": {"BlockElements": [{"Type": "Question", "QuestionID": "QID1"}]}}
	}`

	result, err := Flatten(context.Background(), []byte(definition), Options{Collision: CollisionFirst})
	require.NoError(t, err)
	require.Equal(t, []string{"QID", "QuestionText", "QuestionType", "AdditionalQuestions.DataExportTag"}, result.Wide.Columns)
	require.Equal(t, "Q1_a", result.Wide.Rows[0][3])

	_, err = Flatten(context.Background(), []byte(definition), Options{Collision: CollisionStrict})
	var conflict *PivotConflictError
	require.ErrorAs(t, err, &conflict)
	expected := PivotConflictError{
		Index:  "QID1",
		Column: "AdditionalQuestions.DataExportTag",
		First:  "Q1_a",
		Second: "Q1_b",
	}
	if diff := cmp.Diff(expected, *conflict); diff != "" {
		t.Fatal(diff)
	}
}

func TestFlattenSchemaErrors(t *testing.T) {
	testCases := []struct {
		name       string
		definition string
		path       string
	}{
		{
			name:       "invalid json",
			definition: `{"Questions": `,
			path:       "",
		},
		{
			name:       "missing questions",
			definition: `{"SurveyFlow": {"Flow": []}, "Blocks": {}}`,
			path:       "Questions",
		},
		{
			name:       "missing flow",
			definition: `{"Questions": {}, "SurveyFlow": {}, "Blocks": {}}`,
			path:       "SurveyFlow.Flow",
		},
		{
			name:       "missing blocks",
			definition: `{"Questions": {}, "SurveyFlow": {"Flow": []}}`,
			path:       "Blocks",
		},
		{
			name:       "embedded data node without fields",
			definition: `{"Questions": {}, "SurveyFlow": {"Flow": [{"Type": "EmbeddedData", "FlowID": "FL_1"}]}, "Blocks": {}}`,
			path:       "SurveyFlow.Flow.0",
		},
		{
			name:       "block element without type",
			definition: `{"Questions": {}, "SurveyFlow": {"Flow": []}, "Blocks": {"BL1": {"BlockElements": [{"QuestionID": "QID1"}]}}}`,
			path:       "Blocks.BL1.BlockElements",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Flatten(context.Background(), []byte(tc.definition), Options{})
			var schemaErr *SchemaAssumptionError
			require.ErrorAs(t, err, &schemaErr)
			require.Equal(t, tc.path, schemaErr.Path)
		})
	}
}

func TestParseCollision(t *testing.T) {
	c, err := ParseCollision("")
	require.NoError(t, err)
	require.Equal(t, CollisionFirst, c)

	c, err = ParseCollision("Strict")
	require.NoError(t, err)
	require.Equal(t, CollisionStrict, c)

	_, err = ParseCollision("last")
	require.Error(t, err)
}
