package flatten

import (
	"strconv"

	"github.com/tidwall/gjson"
)

const elementTypePageBreak = "Page Break"

// BlockRow is one element of a block.
type BlockRow struct {
	BlockID          string
	BlockType        string
	BlockDescription string
	BlockElementSort int
	BlockElementType string
	QID              string
}

// extractBlocks lists every block element in document order. Blocks may be
// an object keyed by block id or an array, a block without an ID field
// falls back to its key.
func extractBlocks(blocks gjson.Result) ([]BlockRow, error) {
	if !blocks.IsObject() && !blocks.IsArray() {
		return nil, &SchemaAssumptionError{Path: "Blocks", Reason: "expected an object or an array"}
	}

	var rows []BlockRow
	var err error
	position := 0
	blocks.ForEach(func(key, block gjson.Result) bool {
		// array iteration passes no key
		name := key.String()
		if blocks.IsArray() {
			name = strconv.Itoa(position)
		}
		position++

		path := "Blocks." + name
		if !block.IsObject() {
			err = &SchemaAssumptionError{Path: path, Reason: "expected a block object"}
			return false
		}

		id := block.Get("ID").String()
		if id == "" && blocks.IsObject() {
			id = name
		}
		blockType, _ := cellValue(block.Get("Type"))
		description, _ := cellValue(block.Get("Description"))

		index := 0
		block.Get("BlockElements").ForEach(func(_, element gjson.Result) bool {
			sort := index
			index++

			elementType := element.Get("Type")
			if !elementType.Exists() {
				err = &SchemaAssumptionError{Path: path + ".BlockElements", Reason: "block element has no Type"}
				return false
			}
			if elementType.String() == elementTypePageBreak {
				return true
			}
			rows = append(rows, BlockRow{
				BlockID:          id,
				BlockType:        blockType,
				BlockDescription: description,
				BlockElementSort: sort,
				BlockElementType: elementType.String(),
				QID:              element.Get("QuestionID").String(),
			})
			return true
		})
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}
