package qualtrics

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
)

// ExtractSingleCSV returns the contents of the only file inside an export
// archive. Directory entries are not counted.
func ExtractSingleCSV(archive []byte) ([]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, &MalformedExportError{Reason: fmt.Sprintf("open archive: %v", err)}
	}

	var files []*zip.File
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		files = append(files, f)
	}
	if len(files) != 1 {
		return nil, &MalformedExportError{
			Reason: fmt.Sprintf("expected exactly one file in archive, found %d", len(files)),
		}
	}

	rc, err := files[0].Open()
	if err != nil {
		return nil, &MalformedExportError{Reason: fmt.Sprintf("open %s: %v", files[0].Name, err)}
	}
	defer rc.Close()
	contents, err := io.ReadAll(rc)
	if err != nil {
		return nil, &MalformedExportError{Reason: fmt.Sprintf("read %s: %v", files[0].Name, err)}
	}
	return contents, nil
}
