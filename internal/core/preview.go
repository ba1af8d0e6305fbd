package core

// DefaultPreviewRows is the number of data rows shown before an import.
const DefaultPreviewRows = 5

// Preview returns the header row plus up to maxRows data rows, split and
// cleaned cell by cell. Blank lines are skipped. A non-positive maxRows
// uses DefaultPreviewRows.
func Preview(text string, maxRows int) [][]string {
	if maxRows <= 0 {
		maxRows = DefaultPreviewRows
	}

	lines := splitLines(text)
	if len(lines) > maxRows+1 {
		lines = lines[:maxRows+1]
	}

	rows := make([][]string, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, SplitRow(l))
	}
	return rows
}

// PreviewResponse is the preview payload returned to clients.
type PreviewResponse struct {
	Headers   []string   `json:"headers"`
	Rows      [][]string `json:"rows"`
	Mapped    []string   `json:"mapped"`
	Unmapped  []string   `json:"unmapped,omitempty"`
	FieldType []string   `json:"fieldTypes"`
}

// BuildPreview wraps Preview with header mapping details for display.
func BuildPreview(text string, maxRows int) PreviewResponse {
	rows := Preview(text, maxRows)
	resp := PreviewResponse{Headers: []string{}, Rows: [][]string{}, Mapped: []string{}, FieldType: []string{}}
	if len(rows) == 0 {
		return resp
	}

	resp.Headers = rows[0]
	resp.Rows = rows[1:]
	for _, h := range resp.Headers {
		if c, ok := LookupHeader(h); ok {
			resp.Mapped = append(resp.Mapped, c.Name())
		} else {
			resp.Mapped = append(resp.Mapped, h)
			resp.Unmapped = append(resp.Unmapped, h)
		}
		resp.FieldType = append(resp.FieldType, HeaderFieldType(h).String())
	}
	return resp
}
