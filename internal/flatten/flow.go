package flatten

import (
	"fmt"

	"github.com/tidwall/gjson"
)

const flowTypeEmbeddedData = "EmbeddedData"

// FlowRow is one row of the flow table. Block references have an empty
// Field, Type and Value; embedded data definitions have one row per field.
type FlowRow struct {
	FlowSort int
	FlowID   string
	BlockID  string
	FlowType string
	Field    string
	Type     string
	Value    string
}

type flowNode struct {
	sort     int
	path     string
	node     gjson.Result
	flowID   string
	blockID  string
	flowType string
}

// walkFlow numbers every flow node in pre-order, nested Flow arrays are
// visited right after their parent.
func walkFlow(flow gjson.Result, path string, out *[]flowNode) {
	i := 0
	flow.ForEach(func(_, node gjson.Result) bool {
		nodePath := fmt.Sprintf("%s.%d", path, i)
		i++
		*out = append(*out, flowNode{
			sort:     len(*out),
			path:     nodePath,
			node:     node,
			flowID:   node.Get("FlowID").String(),
			blockID:  node.Get("ID").String(),
			flowType: node.Get("Type").String(),
		})
		nested := node.Get("Flow")
		if nested.IsArray() {
			walkFlow(nested, nodePath+".Flow", out)
		}
		return true
	})
}

// extractFlow builds the flow table. When no node carries nested flows or
// embedded data the result is the minimal form: one row per node with an
// empty Field, Type and Value.
func extractFlow(flow gjson.Result) ([]FlowRow, error) {
	var nodes []flowNode
	walkFlow(flow, "SurveyFlow.Flow", &nodes)

	structured := false
	for _, n := range nodes {
		if n.node.Get("Flow").Exists() || n.node.Get("EmbeddedData").Exists() {
			structured = true
			break
		}
	}

	rows := make([]FlowRow, 0, len(nodes))
	if !structured {
		for _, n := range nodes {
			if n.flowType == flowTypeEmbeddedData {
				return nil, &SchemaAssumptionError{
					Path:   n.path,
					Reason: "EmbeddedData flow node has no EmbeddedData array",
				}
			}
			rows = append(rows, FlowRow{
				FlowSort: n.sort,
				FlowID:   n.flowID,
				BlockID:  n.blockID,
				FlowType: n.flowType,
			})
		}
		return rows, nil
	}

	for _, n := range nodes {
		fields := n.node.Get("EmbeddedData")
		if !fields.Exists() || fields.Type == gjson.Null {
			if n.flowType == flowTypeEmbeddedData {
				return nil, &SchemaAssumptionError{
					Path:   n.path,
					Reason: "EmbeddedData flow node has no EmbeddedData array",
				}
			}
			rows = append(rows, FlowRow{
				FlowSort: n.sort,
				FlowID:   n.flowID,
				BlockID:  n.blockID,
				FlowType: n.flowType,
			})
			continue
		}
		if !fields.IsArray() {
			return nil, &SchemaAssumptionError{
				Path:   n.path + ".EmbeddedData",
				Reason: "expected an array of embedded data fields",
			}
		}

		fields.ForEach(func(_, field gjson.Result) bool {
			name := field.Get("Field")
			typ := field.Get("Type")
			// fields without a name or type are not data definitions
			if !name.Exists() || name.Type == gjson.Null || !typ.Exists() || typ.Type == gjson.Null {
				return true
			}
			value, _ := cellValue(field.Get("Value"))
			rows = append(rows, FlowRow{
				FlowSort: n.sort,
				FlowID:   n.flowID,
				BlockID:  n.blockID,
				FlowType: n.flowType,
				Field:    name.String(),
				Type:     typ.String(),
				Value:    value,
			})
			return true
		})
	}
	return dedupFlow(rows), nil
}

func dedupFlow(rows []FlowRow) []FlowRow {
	seen := make(map[FlowRow]bool, len(rows))
	out := rows[:0]
	for _, r := range rows {
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

// cellValue renders a JSON value the way it is written into a table cell,
// null and missing values report false.
func cellValue(r gjson.Result) (string, bool) {
	switch r.Type {
	case gjson.Null:
		return "", false
	case gjson.String:
		return r.Str, true
	case gjson.True:
		return "true", true
	case gjson.False:
		return "false", true
	default:
		return r.Raw, true
	}
}
